// Package memcore holds the data model and error taxonomy shared by every
// other package in this module: episodes, steps, outcomes, rewards,
// patterns, heuristics, relationships, and summaries.
package memcore

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure, per the error taxonomy.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindValidation          Kind = "validation"
	KindAlreadyCompleted    Kind = "already_completed"
	KindResourceLimit       Kind = "resource_limit_exceeded"
	KindStorage             Kind = "storage"
	KindCache               Kind = "cache"
	KindPool                Kind = "pool"
	KindTimeout             Kind = "timeout"
	KindSecurityViolation   Kind = "security_violation"
	KindConnectionFailure   Kind = "connection_failure"
)

// Error is the unified error type for the module. It always carries an
// operation label for observability, and optionally a field name (used by
// Validation errors to identify which input failed, e.g. "task_description"
// or "cycle") and a wrapped cause.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s(%s): %v", e.Op, e.Kind, e.Field, e.Err)
		}
		return fmt.Sprintf("%s: %s(%s)", e.Op, e.Kind, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, NewNotFound("", nil)) and friends work by
// comparing kinds, and fields too when the target sets one.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind && (t.Field == "" || e.Field == t.Field)
	}
	return false
}

func newErr(kind Kind, op string, field string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Field: field, Err: cause}
}

func NewNotFound(op string, cause error) *Error { return newErr(KindNotFound, op, "", cause) }

func NewValidation(op, field string, cause error) *Error {
	return newErr(KindValidation, op, field, cause)
}

func NewAlreadyCompleted(op string) *Error {
	return newErr(KindAlreadyCompleted, op, "", nil)
}

func NewResourceLimitExceeded(op, field string) *Error {
	return newErr(KindResourceLimit, op, field, nil)
}

func NewStorage(op string, cause error) *Error { return newErr(KindStorage, op, "", cause) }

func NewCache(op string, cause error) *Error { return newErr(KindCache, op, "", cause) }

func NewPool(op string, cause error) *Error { return newErr(KindPool, op, "", cause) }

func NewTimeout(op string) *Error { return newErr(KindTimeout, op, "", nil) }

// SecurityViolationKind enumerates the reasons a sandbox rejects or aborts
// an execution.
type SecurityViolationKind string

const (
	SecurityViolationDeniedAPI    SecurityViolationKind = "denied_api"
	SecurityViolationTooLarge     SecurityViolationKind = "code_too_large"
	SecurityViolationRuntimeBreach SecurityViolationKind = "runtime_breach"
)

func NewSecurityViolation(op string, kind SecurityViolationKind) *Error {
	return newErr(KindSecurityViolation, op, string(kind), nil)
}

func NewConnectionFailure(op string, cause error) *Error {
	return newErr(KindConnectionFailure, op, "", cause)
}

// IsKind reports whether err (or one wrapped by it) is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Retryable reports whether an error kind is safe to retry with backoff at
// the pool boundary: connection, timeout and pool failures are transient,
// everything else (validation, not-found, already-completed, security
// violations) is not.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindConnectionFailure, KindTimeout, KindPool:
		return true
	default:
		return false
	}
}
