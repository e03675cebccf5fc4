// Package errkind defines the error taxonomy surfaced by the API, the SSE
// stream, and queue results. Every failure path in the system maps to exactly
// one Kind; callers branch on kinds, never on message text.
package errkind

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the surface label of an error class.
type Kind string

// Error kinds.
const (
	InvalidInput       Kind = "InvalidInput"
	Timeout            Kind = "Timeout"
	CircuitOpen        Kind = "CircuitOpen"
	Transport          Kind = "Transport"
	ProviderError      Kind = "ProviderError"
	RateLimited        Kind = "RateLimited"
	LLMUnavailable     Kind = "LLMUnavailable"
	InsufficientData   Kind = "InsufficientData"
	SchemaMismatch     Kind = "SchemaMismatch"
	WorkflowTimeout    Kind = "WorkflowTimeout"
	Cancelled          Kind = "Cancelled"
	StorageUnavailable Kind = "StorageUnavailable"
	ServerShuttingDown Kind = "ServerShuttingDown"
	NotFound           Kind = "NotFound"
	InternalError      Kind = "InternalError"
)

// Error is a classified error. It wraps an optional cause and carries a
// human-readable message safe to return to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil cause yields nil.
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors report
// InternalError; nil reports the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to the REST status code returned to callers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, SchemaMismatch:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case RateLimited:
		return http.StatusTooManyRequests
	case Timeout, WorkflowTimeout:
		return http.StatusGatewayTimeout
	case CircuitOpen, LLMUnavailable, StorageUnavailable, ServerShuttingDown:
		return http.StatusServiceUnavailable
	case Cancelled:
		return http.StatusConflict
	case InsufficientData, ProviderError, Transport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
