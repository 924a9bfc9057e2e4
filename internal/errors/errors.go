// Package errors provides code-tagged application errors. The transport layer
// maps codes to HTTP status codes; the engine never inspects messages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies the class of an application error.
type Code string

const (
	ErrCodeValidation   Code = "VALIDATION_ERROR"
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeConflict     Code = "CONFLICT"
	ErrCodeUnauthorized Code = "UNAUTHORIZED"
	ErrCodeInternal     Code = "INTERNAL"
)

// Error is an application error carrying a code and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an application error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates an application error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message, preserving it as the cause.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports that the identified entity does not exist.
func NotFound(entity, id string) error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// InvalidInput reports unsafe or malformed caller input for a named field.
func InvalidInput(field, message string) error {
	return &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, message)}
}

// Validation reports out-of-range or malformed domain input.
func Validation(message string) error {
	return &Error{Code: ErrCodeValidation, Message: message}
}

// Unauthorized reports that the actor lacks the required role or permission.
func Unauthorized(message string) error {
	return &Error{Code: ErrCodeUnauthorized, Message: message}
}

// CodeOf extracts the application code from err, defaulting to ErrCodeInternal
// for plain errors so internal detail never leaks a 4xx classification.
func CodeOf(err error) Code {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Message returns the sanitized message for err. Internal errors collapse to a
// generic message; their detail is for logs only.
func Message(err error) string {
	var appErr *Error
	if stderrors.As(err, &appErr) && appErr.Code != ErrCodeInternal {
		return appErr.Message
	}
	return "internal server error"
}
