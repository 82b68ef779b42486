// Package id defines the TypeID identifiers used by credits.
//
// Purchases, deductions, sessions and generation requests carry an ID of the
// form "prefix_suffix". Suffixes are UUIDv7 based, so IDs sort by creation
// time, which the ledger relies on when two purchases share a timestamp.
// Accounts are keyed by normalized email and have no ID.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants.
const (
	PrefixPurchase   Prefix = "pur" // Plan purchase (trial grant, subscription, top-up)
	PrefixDeduction  Prefix = "ded" // Confirmed credit deduction
	PrefixSession    Prefix = "ses" // Login session
	PrefixGeneration Prefix = "gen" // Generation request
)

// ID wraps a TypeID. The zero value is Nil.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix. It panics on an invalid
// prefix, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "pur_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and rejects IDs of another entity type.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// FromUUID encodes a hex UUID under prefix. The same UUID always yields the
// same ID.
func FromUUID(prefix Prefix, uid string) (ID, error) {
	tid, err := typeid.FromUUID(string(prefix), uid)
	if err != nil {
		return Nil, fmt.Errorf("id: from uuid %q: %w", uid, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Typed aliases
// ──────────────────────────────────────────────────

// PurchaseID identifies a plan purchase (prefix: "pur").
type PurchaseID = ID

// DeductionID identifies a confirmed deduction (prefix: "ded").
type DeductionID = ID

// SessionID identifies a login session (prefix: "ses").
type SessionID = ID

// GenerationID identifies a generation request (prefix: "gen").
type GenerationID = ID

func NewPurchaseID() ID   { return New(PrefixPurchase) }
func NewDeductionID() ID  { return New(PrefixDeduction) }
func NewSessionID() ID    { return New(PrefixSession) }
func NewGenerationID() ID { return New(PrefixGeneration) }

func ParsePurchaseID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixPurchase) }
func ParseDeductionID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixDeduction) }
func ParseSessionID(s string) (ID, error)    { return ParseWithPrefix(s, PrefixSession) }
func ParseGenerationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixGeneration) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler. Account records are stored
// as JSON, so this is what lands in the key-value store.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
