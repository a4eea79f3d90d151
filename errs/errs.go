// Package errs defines the closed error taxonomy shared by every component
// (§7). One Error type carries a Kind from the closed set, and HTTPStatus
// maps each Kind to a status code, so a transport layer has a single place
// to translate failures into HTTP
// status codes without any component needing to know about HTTP.
package errs

import (
	"fmt"
	"net/http"
)

// Kind names one of the taxonomy entries from spec §7.
type Kind string

const (
	KindInvalidIdentifier   Kind = "InvalidIdentifier"
	KindSchemaValidation    Kind = "SchemaValidationError"
	KindMissingVariable     Kind = "MissingVariable"
	KindImpossibleSchema    Kind = "ImpossibleSchema"
	KindDuplicateVersion    Kind = "DuplicateVersion"
	KindVersionNotFound     Kind = "VersionNotFound"
	KindFunctionNotFound    Kind = "FunctionNotFound"
	KindUnauthorized        Kind = "Unauthorized"
	KindForbidden           Kind = "Forbidden"
	KindRateLimited         Kind = "RateLimited"
	KindTimeout             Kind = "Timeout"
	KindRuntimeError        Kind = "RuntimeError"
	KindUpstreamError       Kind = "UpstreamError"
	KindCancelled           Kind = "Cancelled"
)

// Error is the concrete error type carried through the system. It always
// has a Kind and a human-readable Message; Stack/MappedStack/Code are
// populated where applicable (§7's "user-visible errors").
type Error struct {
	Kind         Kind
	Message      string
	Code         string
	Stack        string
	MappedStack  string
	RetryAfter   int // seconds; only meaningful for KindRateLimited
	wrapped      error
}

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around an existing error,
// preserving it for errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), wrapped: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped error, if any, for errors.Is/As.
func (e *Error) Unwrap() error { return e.wrapped }

// HTTPStatus maps the error's Kind to the status code named in §6/§7.
// Agentic/cascade timeouts are intentionally NOT mapped here: callers of
// those executors return status 200 with a "timeout" body field per spec,
// so only code-executor-style timeouts use this mapping.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidIdentifier, KindSchemaValidation, KindMissingVariable, KindImpossibleSchema:
		return http.StatusBadRequest
	case KindDuplicateVersion:
		return http.StatusConflict
	case KindVersionNotFound:
		return http.StatusBadRequest
	case KindFunctionNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusInternalServerError
	case KindRuntimeError, KindUpstreamError:
		return http.StatusInternalServerError
	case KindCancelled:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write `errors.Is(err, errs.New(errs.KindFunctionNotFound, ""))`-style
// checks. The package defines no per-Kind sentinel values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
