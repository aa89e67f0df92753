package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error kind mapped to process exit codes.
type Code int

const (
	CodeSuccess  Code = 0
	CodeInternal Code = 1
	CodeUsage    Code = 2

	// Pipeline failure kinds. Each terminal failure of an action maps to
	// exactly one of these.
	CodeParse       Code = 10
	CodeValidation  Code = 11
	CodeApproval    Code = 12
	CodeSubmission  Code = 13
	CodeTimeout     Code = 14
	CodeRefresh     Code = 15
	CodeUnsupported Code = 16
	CodeUnavailable Code = 17
	CodeSigner      Code = 18
)

// Error is a typed error that carries a stable code across package boundaries.
// Components return these instead of formatting user text in place; the
// orchestrator and composer decide what the caller sees.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if typed, ok := As(err); ok {
		return typed.Code
	}
	return CodeInternal
}

func ExitCode(err error) int {
	return int(CodeOf(err))
}

// Kind returns a short stable string for a failure code, used in structured
// outcomes and run records.
func Kind(code Code) string {
	switch code {
	case CodeParse:
		return "parse_error"
	case CodeValidation:
		return "validation_failure"
	case CodeApproval:
		return "approval_failed"
	case CodeSubmission:
		return "submission_error"
	case CodeTimeout:
		return "timed_out"
	case CodeRefresh:
		return "state_refresh_error"
	case CodeUnsupported:
		return "unsupported"
	case CodeUnavailable:
		return "unavailable"
	case CodeSigner:
		return "signer_error"
	case CodeUsage:
		return "usage"
	default:
		return "internal"
	}
}
