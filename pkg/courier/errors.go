package courier

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures into the fixed taxonomy the
// dispatcher and reconciler act on.
type ErrorKind string

const (
	// KindValidation marks bad request input (address, phone); surfaced to the caller.
	KindValidation ErrorKind = "validation"

	// KindSoftDecline marks distance/operating-hours exclusions; the provider
	// is skipped, never fatal to aggregation.
	KindSoftDecline ErrorKind = "soft_decline"

	// KindRejected marks a hard payload rejection by the provider.
	KindRejected ErrorKind = "rejected"

	// KindAuth marks a revoked or expired credential; handled by the session
	// manager with a single refresh-and-retry.
	KindAuth ErrorKind = "auth"

	// KindNotFound marks an unresolvable identifier.
	KindNotFound ErrorKind = "not_found"

	// KindTransient marks timeouts and 5xx responses; no implicit retry.
	KindTransient ErrorKind = "transient"
)

// CourierError represents an error from a courier provider.
type CourierError struct {
	Provider   string
	Kind       ErrorKind
	Code       string
	Message    string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *CourierError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s/%s): %s: %v", e.Provider, e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s/%s): %s", e.Provider, e.Kind, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CourierError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for CourierError, matching on kind.
func (e *CourierError) Is(target error) bool {
	t, ok := target.(*CourierError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a new CourierError.
func NewError(provider string, kind ErrorKind, code, message string) *CourierError {
	return &CourierError{
		Provider: provider,
		Kind:     kind,
		Code:     code,
		Message:  message,
	}
}

// WithCause adds a cause to the error.
func (e *CourierError) WithCause(err error) *CourierError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *CourierError) WithStatusCode(code int) *CourierError {
	e.StatusCode = code
	return e
}

// Sentinel errors for common broker scenarios.
var (
	// ErrProviderNotFound indicates the requested provider is not registered.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrNoQuotes indicates aggregation produced no usable quote.
	ErrNoQuotes = errors.New("no quotes available")

	// ErrJobNotFound indicates the correlation key resolved to no job.
	ErrJobNotFound = errors.New("job not found")

	// ErrAuthFailed indicates provider authentication failed even after refresh.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrOutOfRange indicates the request is outside the provider's
	// distance or operating-hours limits.
	ErrOutOfRange = errors.New("out of range")

	// ErrProviderUnavailable indicates the provider could not be reached in time.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrWebhookAuth indicates the inbound webhook secret did not match.
	ErrWebhookAuth = errors.New("webhook authentication failed")
)

// KindOf returns the taxonomy kind of an error, or empty for errors outside
// the taxonomy.
func KindOf(err error) ErrorKind {
	var ce *CourierError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, ErrOutOfRange):
		return KindSoftDecline
	case errors.Is(err, ErrAuthFailed):
		return KindAuth
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrProviderNotFound):
		return KindNotFound
	case errors.Is(err, ErrProviderUnavailable):
		return KindTransient
	}
	return ""
}

// IsSoftDecline reports whether the provider declined the request for
// reasons that should exclude it from aggregation without failing it.
func IsSoftDecline(err error) bool {
	return KindOf(err) == KindSoftDecline
}

// IsAuth reports whether the error is attributable to a revoked or expired
// provider credential.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}
