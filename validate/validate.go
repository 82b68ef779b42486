// Package validate checks caller input before it reaches the ledger. It wraps
// go-playground/validator and reports failures as credits.ValidationError.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
)

// Validator is safe for concurrent use once built.
type Validator struct {
	v       *validator.Validate
	domains map[string]bool // nil accepts every domain
}

// Option configures a Validator.
type Option func(*Validator)

// WithAllowedDomains restricts login emails to the given domains. Empty
// entries are ignored; no domains means no restriction.
func WithAllowedDomains(domains ...string) Option {
	return func(v *Validator) {
		for _, d := range domains {
			d = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(d, "@")))
			if d == "" {
				continue
			}
			if v.domains == nil {
				v.domains = make(map[string]bool)
			}
			v.domains[d] = true
		}
	}
}

// New builds a Validator. Struct tags may use "allowed_domain" on email
// fields.
func New(opts ...Option) *Validator {
	out := &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
	for _, opt := range opts {
		opt(out)
	}

	out.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = out.v.RegisterValidation("allowed_domain", out.allowedDomain) //nolint:errcheck // static tag name
	_ = out.v.RegisterValidation("notblank", notBlank)                //nolint:errcheck // static tag name

	return out
}

func (v *Validator) allowedDomain(fl validator.FieldLevel) bool {
	email := fl.Field().String()
	if email == "" || v.domains == nil {
		return true
	}
	return v.domains[Domain(email)]
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Domain returns the lowercased part after the last "@".
func Domain(email string) string {
	email = account.NormalizeEmail(email)
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}

// Email checks a login email: present, well formed and from an allowed
// domain.
func (v *Validator) Email(email string) error {
	email = account.NormalizeEmail(email)
	if err := v.v.Var(email, "required,email,allowed_domain"); err != nil {
		return convert(err, "email")
	}
	return nil
}

// Struct validates s by its struct tags.
func (v *Validator) Struct(s any) error {
	if err := v.v.Struct(s); err != nil {
		return convert(err, "")
	}
	return nil
}

// convert maps validator output onto credits errors. A single failure is
// returned as is, several are collected in a MultiError.
func convert(err error, field string) error {
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return credits.ValidationError{Field: field, Message: err.Error()}
	}

	var multi credits.MultiError
	for _, fe := range fes {
		name := fe.Field()
		if field != "" {
			name = field
		}
		multi.Add(credits.ValidationError{Field: name, Message: message(fe)})
	}
	if len(multi.Errors) == 1 {
		return multi.First()
	}
	return multi
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "allowed_domain":
		return "domain is not allowed"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
