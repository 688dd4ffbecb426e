// Package apperr defines the service's error taxonomy and its mapping
// to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the condition an error represents.
type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "VERSION_CONFLICT"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// Error is the service-level error type carried from the service layer
// to the HTTP boundary.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Validation reports malformed or empty input, rejected before any
// store access.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// NotFound reports an entity absent from the durable store.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// Conflict reports an optimistic-concurrency version mismatch.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// Internal wraps an unexpected store or serialization failure.
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Cause: cause}
}

// HTTPStatus maps an error to the HTTP status code it should produce.
// Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf extracts the condition code, defaulting to internal for
// errors raised outside this package.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
