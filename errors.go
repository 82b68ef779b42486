package credits

import (
	"errors"
	"fmt"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/store"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput     = errors.New("credits: invalid input")
	ErrNoSession        = errors.New("credits: no active session")
	ErrAccountNotFound  = errors.New("credits: account not found")
	ErrCorruptRecord    = errors.New("credits: corrupt account record")
	ErrConcurrentUpdate = errors.New("credits: account changed concurrently, retries exhausted")

	// Plan errors
	ErrPlanNotFound      = plan.ErrPlanNotFound
	ErrPlanNotForSale    = errors.New("credits: plan cannot be purchased")
	ErrDuplicatePurchase = account.ErrDuplicatePurchase

	// Credit errors
	ErrInsufficientCredits = errors.New("credits: insufficient credits")
	ErrLoginLocked         = errors.New("credits: free login limit reached")

	// Generation errors
	ErrUnknownProvider = pricing.ErrUnknownProvider
	ErrUnknownQuality  = pricing.ErrUnknownQuality
	ErrProviderFailed  = errors.New("credits: generation provider failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap returns the sentinel behind the failure, ErrInvalidInput when unset.
func (e ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "credits: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("credits: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Err returns nil when nothing was collected.
func (e MultiError) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, store.ErrNotFound)
}

// IsValidation returns true if the input was rejected before touching state.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrInvalidInput)
}

// IsCreditError returns true if the error blocks a generation for lack of
// credits or because of the login throttle.
func IsCreditError(err error) bool {
	return errors.Is(err, ErrInsufficientCredits) ||
		errors.Is(err, ErrLoginLocked)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate) ||
		errors.Is(err, store.ErrVersionConflict) ||
		errors.Is(err, ErrProviderFailed)
}
