// Package apperr defines the typed error kinds shared across the
// orchestrator so that HTTP handlers and workers can map a failure to a
// status code or a retry decision without string-matching error text.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind identifies a class of failure. Handlers switch on Kind, never on
// the wrapped message.
type Kind string

const (
	KindInvalidInput           Kind = "InvalidInput"
	KindInvalidIdempotencyKey  Kind = "InvalidIdempotencyKey"
	KindIdempotencyConflict    Kind = "IdempotencyConflict"
	KindQuoteExpired           Kind = "QuoteExpired"
	KindInvalidStateTransition Kind = "InvalidStateTransition"
	KindNotFound               Kind = "NotFound"
	KindInsufficientBalance    Kind = "InsufficientBalance"
	KindRateUnavailable        Kind = "RateUnavailable"
	KindProviderFailure        Kind = "ProviderFailure"
	KindInternal               Kind = "Internal"
)

// Error is the concrete typed error carried through the system. The
// message is safe to surface to API clients; Cause is kept for logs only.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a typed error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind to an underlying error, adding stack context via
// github.com/pkg/errors so logs retain a trace back to the failing call.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: errors.Wrap(cause, message)}
}

// As extracts an *Error from err, following Unwrap chains.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to KindInternal for errors
// that were never classified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the response status mandated by the API
// surface (400/404/409/500 per the error handling design).
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput, KindInvalidIdempotencyKey, KindQuoteExpired,
		KindInvalidStateTransition, KindInsufficientBalance:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindIdempotencyConflict:
		return http.StatusConflict
	case KindRateUnavailable, KindProviderFailure, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
