// Package corekinds classifies collector and review outcomes into the
// closed set of result kinds the orchestrator's worker loop switches on,
// replacing exception-based control flow (spec.md §9) with a sum type.
package corekinds

import (
	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
)

// Kind is the outcome tag a worker loop iteration reduces to.
type Kind string

const (
	// OK indicates the operation completed; the job may be marked completed.
	OK Kind = "ok"
	// Transient indicates a retryable failure (LLM timeout/5xx, network error).
	Transient Kind = "transient"
	// Fatal indicates a non-retryable failure (malformed job spec, exhausted retries).
	Fatal Kind = "fatal"
	// PayloadInvalid indicates the LLM response failed schema validation.
	PayloadInvalid Kind = "payload_invalid"
	// Conflict indicates an ambiguous duplicate; not fatal to the job.
	Conflict Kind = "conflict"
	// Stale indicates a review-time optimistic-concurrency failure.
	Stale Kind = "stale"
)

// Result pairs a Kind with the underlying structured error, if any.
type Result struct {
	Kind Kind
	Err  *apperrors.AppError
}

// Ok is the zero-error success result.
func Ok() Result {
	return Result{Kind: OK}
}

// TransientErr builds a Transient result wrapping cause.
func TransientErr(cause error, message string) Result {
	return Result{Kind: Transient, Err: apperrors.Wrap(cause, apperrors.ErrorTypeNetwork, message)}
}

// FatalErr builds a Fatal result wrapping cause.
func FatalErr(cause error, message string) Result {
	return Result{Kind: Fatal, Err: apperrors.Wrap(cause, apperrors.ErrorTypeInternal, message)}
}

// PayloadInvalidErr builds a PayloadInvalid result.
func PayloadInvalidErr(message string) Result {
	return Result{Kind: PayloadInvalid, Err: apperrors.New(apperrors.ErrorTypeValidation, message)}
}

// ConflictErr builds a Conflict result (ambiguous duplicate).
func ConflictErr(message string) Result {
	return Result{Kind: Conflict, Err: apperrors.New(apperrors.ErrorTypeConflict, message)}
}

// StaleErr builds a Stale result (optimistic concurrency failure).
func StaleErr(message string) Result {
	return Result{Kind: Stale, Err: apperrors.New(apperrors.ErrorTypeConflict, message)}
}

// Retryable reports whether a job experiencing this result should be
// rescheduled rather than failed outright, per spec.md §4.E(4).
func (r Result) Retryable() bool {
	return r.Kind == Transient
}

// Error implements the error interface so a Result can be returned
// directly from functions that already return error.
func (r Result) Error() string {
	if r.Err == nil {
		return string(r.Kind)
	}
	return r.Err.Error()
}

// Unwrap exposes the underlying *apperrors.AppError so errors.As can
// recover it (e.g. pkg/coreapi/httpfacade mapping a Result onto an HTTP
// status via the AppError's own StatusCode).
func (r Result) Unwrap() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}
