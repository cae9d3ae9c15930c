// Package errors provides application-level error types and utilities for the
// chain analysis pipeline: expected lookup misses, provider transport and
// validation failures, and fatal resource-setup errors.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

// Malformed upstream data is recovered locally by the sanitize package and
// never surfaces as an error value, so it has no type here.
const (
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeProviderTransport  ErrorType = "provider_transport"
	ErrorTypeProviderValidation ErrorType = "provider_validation"
	ErrorTypeResourceSetup      ErrorType = "resource_setup"
	ErrorTypeInternal           ErrorType = "internal_error"
)

// AppError represents an application error with additional context
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func newAppError(errType ErrorType, message string, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{Type: errType, Message: message, Details: detail}
}

// NewNotFoundError creates an error for an expected lookup miss, e.g. a
// ticket that belongs to no chain.
func NewNotFoundError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotFound, message, details...)
}

// NewProviderTransportError creates an error for a network/timeout/rate-limit
// failure talking to the summarization provider.
func NewProviderTransportError(message string, cause error) *AppError {
	e := newAppError(ErrorTypeProviderTransport, message)
	if cause != nil {
		e.Details = cause.Error()
		e.cause = cause
	}
	return e
}

// NewProviderValidationError creates an error for a provider response that
// does not parse into the expected shape. The raw text is kept in Details so
// the failure can be inspected later.
func NewProviderValidationError(message string, raw string) *AppError {
	return newAppError(ErrorTypeProviderValidation, message, raw)
}

// NewResourceSetupError creates a fatal error for corpus/agent creation or
// verification failures.
func NewResourceSetupError(message string, cause error) *AppError {
	e := newAppError(ErrorTypeResourceSetup, message)
	if cause != nil {
		e.Details = cause.Error()
		e.cause = cause
	}
	return e
}

// NewInternalError creates a generic internal error.
func NewInternalError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeInternal, message, details...)
}

func typeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// Details returns the Details field when err is (or wraps) an AppError, e.g.
// the raw provider response carried by a validation error. Empty otherwise.
func Details(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return ""
}

// IsNotFound reports whether err is (or wraps) a not-found AppError.
func IsNotFound(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeNotFound
}

// IsProviderTransport reports whether err is a provider transport error.
func IsProviderTransport(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeProviderTransport
}

// IsProviderValidation reports whether err is a provider validation error.
func IsProviderValidation(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeProviderValidation
}

// IsResourceSetup reports whether err is a fatal resource-setup error.
func IsResourceSetup(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeResourceSetup
}
