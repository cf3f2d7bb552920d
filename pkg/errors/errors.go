// Package errors defines the reconciliation error taxonomy. The kind of an
// error decides how the orchestrator reacts to it: transient kinds are
// retried, everything else is terminal for the job or rejected up front.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	// KindValidation is a malformed or invalid request. Fatal, no retry.
	KindValidation Kind = "validation"
	// KindResourceExhausted means tenant limits were exceeded. Fatal, no retry.
	KindResourceExhausted Kind = "resource_exhausted"
	// KindTransientIO is a temporarily unavailable store/index/model-store. Retried.
	KindTransientIO Kind = "transient_io"
	// KindModelNotFound means no model is registered under the requested name.
	KindModelNotFound Kind = "model_not_found"
	// KindModelLoad means the model store returned an artifact that could not be loaded.
	KindModelLoad Kind = "model_load"
	// KindConfiguration is an inconsistent configuration (e.g. threshold ordering). Fatal at job start.
	KindConfiguration Kind = "configuration"
	// KindConcurrentModification is a stale optimistic-concurrency write. Surfaced, not retried.
	KindConcurrentModification Kind = "concurrent_modification"
	// KindNotFound is a missing job/match/rule.
	KindNotFound Kind = "not_found"
	// KindInvalidState is an operation attempted against the wrong lifecycle state.
	KindInvalidState Kind = "invalid_state"
	// KindReconciliation is a generic pipeline failure wrapping an underlying cause.
	KindReconciliation Kind = "reconciliation"
)

// Error carries a kind alongside the message and optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

func NewValidation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func NewResourceExhausted(format string, args ...any) *Error {
	return New(KindResourceExhausted, format, args...)
}

func NewTransientIO(cause error, format string, args ...any) *Error {
	return Wrap(KindTransientIO, cause, format, args...)
}

func NewModelNotFound(name string) *Error {
	return New(KindModelNotFound, "model %q is not registered", name)
}

func NewModelLoad(name string, cause error) *Error {
	return Wrap(KindModelLoad, cause, "failed to load model %q", name)
}

func NewConfiguration(format string, args ...any) *Error {
	return New(KindConfiguration, format, args...)
}

func NewConcurrentModification(format string, args ...any) *Error {
	return New(KindConcurrentModification, format, args...)
}

func NewNotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func NewInvalidState(format string, args ...any) *Error {
	return New(KindInvalidState, format, args...)
}

func NewReconciliation(cause error, format string, args ...any) *Error {
	return Wrap(KindReconciliation, cause, format, args...)
}

// KindOf returns the kind of err if it is (or wraps) a taxonomy error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsTransient reports whether err should be retried by the orchestrator.
func IsTransient(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindTransientIO
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// StatusCode maps an error kind to the HTTP status returned at the API boundary.
func StatusCode(kind Kind) int {
	switch kind {
	case KindValidation, KindConfiguration:
		return http.StatusBadRequest
	case KindResourceExhausted:
		return http.StatusTooManyRequests
	case KindNotFound, KindModelNotFound:
		return http.StatusNotFound
	case KindConcurrentModification, KindInvalidState:
		return http.StatusConflict
	case KindTransientIO:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
