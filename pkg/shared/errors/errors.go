// Package errors provides lightweight operation-error wrapping for
// internal plumbing code that does not cross a command-surface boundary
// (internal/errors.AppError is reserved for that). Both exist side by
// side: AppError carries an HTTP status and a closed ErrorType taxonomy
// for callers of the command surface; OperationError is a cheaper
// "what failed, where, why" wrapper for logs and internal propagation.
package errors

import (
	"fmt"
	"strings"
)

// OperationError describes a failed operation together with the
// component and resource it was acting on, if known.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to %s", e.Operation)
	if e.Component != "" {
		fmt.Fprintf(&b, ", component: %s", e.Component)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, ", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ", cause: %s", e.Cause.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds the common "failed to <action>[: <cause>]" error.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return fmt.Errorf("failed to %s", action)
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds an *OperationError naming the component and
// resource involved.
func FailedToWithDetails(operation, component, resource string, cause error) error {
	return &OperationError{
		Operation: operation,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}

// Wrapf formats a message and wraps err with it; returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// DatabaseError wraps a failure from the entity store or change ledger.
func DatabaseError(operation string, cause error) error {
	return FailedToWithDetails(operation, "database", "", cause)
}

// NetworkError wraps a failure reaching endpoint (e.g. the LLM vendor).
func NetworkError(operation, endpoint string, cause error) error {
	return FailedToWithDetails(fmt.Sprintf("%s %s", operation, endpoint), "network", "", cause)
}

// ValidationError reports a field-level validation failure.
func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

// ConfigurationError reports a misconfigured setting.
func ConfigurationError(setting, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, reason)
}

// TimeoutError reports that op did not complete within elapsed.
func TimeoutError(op, elapsed string) error {
	return fmt.Errorf("timeout while %s after %s", op, elapsed)
}

// AuthenticationError reports a failed authentication attempt.
func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

// AuthorizationError reports insufficient permission to perform action on resource.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError reports a failure parsing source as format.
func ParseError(source, format string, cause error) error {
	return FailedTo(fmt.Sprintf("parse %s as %s", source, format), cause)
}

var retryableSubstrings = []string{
	"timeout",
	"connection refused",
	"service unavailable",
	"temporarily unavailable",
	"i/o timeout",
}

// IsRetryable does a best-effort substring classification of err as
// transient. It is a fallback for errors that did not originate as a
// corekinds.Result; prefer corekinds classification where available.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Chain joins the non-nil errors in errs into a single summary error.
func Chain(errs ...error) error {
	var msgs []string
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	switch len(msgs) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s", msgs[0])
	default:
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}
