package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPermission is a generic sentinel for authenticated callers lacking access.
	ErrPermission = errors.New("permission denied")
	// ErrValidation is a generic sentinel for invalid input.
	ErrValidation = errors.New("invalid argument")
	// ErrConflict is a generic sentinel for state conflicts (e.g. mutating an
	// official record directly, or changing a course type after review).
	ErrConflict = errors.New("conflict")
	// ErrExternalSync is a generic sentinel for downstream publication failures.
	ErrExternalSync = errors.New("external sync failed")
	// ErrIndexSanity is a fatal sentinel for index rebuilds whose record count
	// deviates beyond the configured threshold.
	ErrIndexSanity = errors.New("index sanity check failed")
)

// Error is a typed error carrying one of the sentinel kinds plus a
// caller-facing message. The message is what API handlers echo to clients.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// New builds a typed error of the given kind.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a typed error of the given kind with a formatted message.
func Newf(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a typed error of the given kind around an underlying cause.
func Wrap(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// HTTPStatus maps an error to the status the API surfaces for it.
// Conflict and external sync failures surface as 400 to match the
// publication contract: the caller gets the downstream body echoed back.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConflict), errors.Is(err, ErrExternalSync):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing message for typed errors and a generic
// fallback otherwise, so internal details never leak through the API.
func Message(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Message
	}
	if errors.Is(err, ErrNotFound) {
		return "not found"
	}
	return "internal error"
}
