// Package dErrors provides coded domain errors for the compliance gate.
//
// Services and aggregates return these instead of panicking for expected
// business-rule violations. Codes are stable identifiers that the transport
// layer translates into HTTP statuses; messages are safe to show callers
// except for CodeInternal, which must never leak detail.
package dErrors

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error classification.
type Code string

const (
	// CodeValidation marks malformed or missing caller input. Never retried.
	CodeValidation Code = "validation"

	// CodeBadRequest marks a structurally unusable request (missing body,
	// undecodable JSON).
	CodeBadRequest Code = "bad_request"

	// CodeNotFound marks an absent application, environment, or evaluation.
	CodeNotFound Code = "not_found"

	// CodeConflict marks an aggregate uniqueness violation, e.g. adding an
	// environment name that already exists.
	CodeConflict Code = "conflict"

	// CodeInvariantViolation marks a broken aggregate invariant detected at
	// construction time. Handlers usually surface it as validation.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeUnavailable marks a collaborator that could not be reached, most
	// importantly the policy engine. Callers must be able to distinguish
	// "policy says no" from "could not ask policy".
	CodeUnavailable Code = "unavailable"

	// CodeContractViolation marks a collaborator response that breaks its
	// contract, e.g. the policy engine denying with zero violations. This is
	// never silently repaired.
	CodeContractViolation Code = "contract_violation"

	// CodeTimeout marks a deadline exceeded while waiting on a collaborator.
	CodeTimeout Code = "timeout"

	// CodeUnauthorized and CodeForbidden cover transport-level access errors.
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"

	// CodeInternal marks unexpected failures, including persistence errors.
	// Details are logged, never returned to callers.
	CodeInternal Code = "internal_error"
)

// Error is a domain error carrying a code, a caller-safe message, and an
// optional wrapped cause.
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

func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/As chains.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// unclassified errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Message returns the caller-safe message from err, or empty for
// unclassified errors.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// Is forwards to errors.Is so call sites can stay on one import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
