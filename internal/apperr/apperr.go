// Package apperr defines the closed error taxonomy shared by the
// repository, service, and HTTP layers. Every error carries a stable Kind
// and, for conflict and availability kinds, a retryable flag the service
// layer's retry wrapper keys on.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error discriminator.
type Kind string

const (
	KindValidation      Kind = "BAD_REQUEST"
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindTooManyRequests Kind = "TOO_MANY_REQUESTS"
	KindInternal        Kind = "INTERNAL_SERVER_ERROR"
	KindUnavailable     Kind = "SERVICE_UNAVAILABLE"
)

// HTTPStatus returns the status-code hint for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error type crossing layer boundaries.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Context   map[string]any
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithContext returns a copy of the error carrying an extra context field.
func (e *Error) WithContext(key string, value any) *Error {
	out := *e
	out.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		out.Context[k] = v
	}
	out.Context[key] = value
	return &out
}

// Validation reports a request or structural-invariant failure.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// ValidationErr wraps an underlying validation cause.
func ValidationErr(message string, err error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: err}
}

// Unauthorized reports a missing or invalid token.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Forbidden reports a token lacking a required permission.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound reports an absent entity.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// Conflict reports an optimistic-lock failure when retryable, or an
// idempotency collision / illegal transition / integrity anomaly when not.
func Conflict(message string, retryable bool) *Error {
	return &Error{Kind: KindConflict, Message: message, Retryable: retryable}
}

// TooManyRequests reports a rate-limit rejection.
func TooManyRequests(message string) *Error {
	return &Error{Kind: KindTooManyRequests, Message: message}
}

// Internal reports an unhandled failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// Unavailable reports a storage serialization failure or deadlock when
// retryable, or general unavailability when not.
func Unavailable(message string, retryable bool, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Retryable: retryable, Err: err}
}

// KindOf extracts the kind of err, defaulting to KindInternal for errors
// outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is a retryable conflict or availability
// failure. Everything outside the taxonomy is non-retryable.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// As extracts the taxonomy error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
