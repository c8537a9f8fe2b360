// Package errors provides a single structured error type for the core,
// carrying an HTTP status code alongside a classification tag so that
// command-surface callers never need to inspect error strings.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies an AppError for both HTTP status mapping and
// programmatic handling by callers that do not want to depend on the
// command-specific error kinds in pkg/corekinds.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeInternal   ErrorType = "internal"
)

var statusByType = map[ErrorType]int{
	ErrorTypeValidation: http.StatusBadRequest,
	ErrorTypeAuth:       http.StatusUnauthorized,
	ErrorTypeNotFound:   http.StatusNotFound,
	ErrorTypeConflict:   http.StatusConflict,
	ErrorTypeTimeout:    http.StatusRequestTimeout,
	ErrorTypeRateLimit:  http.StatusTooManyRequests,
	ErrorTypeDatabase:   http.StatusInternalServerError,
	ErrorTypeNetwork:    http.StatusInternalServerError,
	ErrorTypeInternal:   http.StatusInternalServerError,
}

// AppError is the structured error carried across every component
// boundary in the core.
type AppError struct {
	Type       ErrorType
	Message    string
	Details    string
	StatusCode int
	Cause      error
}

// New creates an AppError with no details and no wrapped cause.
func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusByType[t],
	}
}

// Newf creates an AppError with a formatted message.
func Newf(t ErrorType, format string, args ...interface{}) *AppError {
	return New(t, fmt.Sprintf(format, args...))
}

// Wrap creates an AppError that wraps an underlying cause.
func Wrap(cause error, t ErrorType, message string) *AppError {
	err := New(t, message)
	err.Cause = cause
	return err
}

// Wrapf creates an AppError wrapping cause with a formatted message.
func Wrapf(cause error, t ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

// WithDetails sets Details in place and returns the same error for chaining.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf sets a formatted Details string in place.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// NewValidationError is a shorthand constructor for the most common
// command-surface failure (InvalidSpec, per spec.md §6.1).
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

// NewDatabaseError wraps a driver error raised while performing op.
func NewDatabaseError(op string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeDatabase, "database operation failed: %s", op)
}

// NewNotFoundError reports that resource could not be located.
func NewNotFoundError(resource string) *AppError {
	return Newf(ErrorTypeNotFound, "%s not found", resource)
}

// NewAuthError reports an authentication/authorization failure.
func NewAuthError(message string) *AppError {
	return New(ErrorTypeAuth, message)
}

// NewTimeoutError reports that op exceeded its deadline.
func NewTimeoutError(op string) *AppError {
	return Newf(ErrorTypeTimeout, "operation timed out: %s", op)
}

// Chain joins the non-nil errors in errs into a single error whose message
// concatenates each message with " -> ". A single non-nil error is
// returned unwrapped; an all-nil input returns nil.
func Chain(errs ...error) error {
	var msgs []string
	var nonNil []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		nonNil = append(nonNil, err)
		msgs = append(msgs, err.Error())
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return errors.New(strings.Join(msgs, " -> "))
	}
}
