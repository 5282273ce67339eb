package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure for transport mapping.
type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindBackendUnavailable
	KindConflict
)

// Error carries a stable machine code plus a human detail. Detail strings
// must not leak backend connection strings or driver stack traces.
type Error struct {
	Kind   ErrorKind
	Code   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Detail: fmt.Sprintf(format, args...)}
}

func ErrInvalidInput(code, format string, args ...any) *Error {
	return newError(KindInvalidInput, code, format, args...)
}

func ErrUnauthenticated(code, format string, args ...any) *Error {
	return newError(KindUnauthenticated, code, format, args...)
}

func ErrForbidden(code, format string, args ...any) *Error {
	return newError(KindForbidden, code, format, args...)
}

func ErrNotFound(code, format string, args ...any) *Error {
	return newError(KindNotFound, code, format, args...)
}

func ErrBackendUnavailable(code, format string, args ...any) *Error {
	return newError(KindBackendUnavailable, code, format, args...)
}

func ErrConflict(code, format string, args ...any) *Error {
	return newError(KindConflict, code, format, args...)
}

// KindOf extracts the kind from err, defaulting to BackendUnavailable for
// untyped failures so raw backend errors never map to a client fault.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindBackendUnavailable
}

// CodeOf extracts the machine code, or "internal_error" for untyped failures.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal_error"
}

// HTTPStatus maps an error kind to its conventional status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBackendUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
