// Package errs defines the coded error taxonomy shared by every viewstore
// package.
//
// Errors carry a Code so callers can branch on the category with Is
// regardless of how many times the error was wrapped on the way up.
//
// Two codes are programmer errors rather than runtime conditions:
// DOUBLE_EXECUTION and INVALID_RETRY. They are raised with panic, carrying an
// *Error value, and are never returned.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes store errors.
type Code string

const (
	// CodeDuplicateIdentity indicates two records derived the same id while
	// building an index. Fatal for the build.
	CodeDuplicateIdentity Code = "DUPLICATE_IDENTITY"

	// CodeOverwriteRejected indicates an add/put batch hit an existing id
	// without overwrite permission. The whole batch is rejected.
	CodeOverwriteRejected Code = "OVERWRITE_REJECTED"

	// CodeConflict indicates an optimistic version check failed. Retryable.
	CodeConflict Code = "CONFLICT"

	// CodeNotFound indicates one or more requested ids do not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeDoubleExecution indicates an action was executed twice.
	CodeDoubleExecution Code = "DOUBLE_EXECUTION"

	// CodeInvalidRetry indicates a conflict resolution call outside the
	// notification that offered it.
	CodeInvalidRetry Code = "INVALID_RETRY"
)

// Error is a coded store error.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// IDs lists the record ids involved, if any.
	IDs []string

	// Err is the underlying cause (optional).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.IDs) > 0 {
		fmt.Fprintf(&b, " (ids=%s)", strings.Join(e.IDs, ","))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and message.
func New(code Code, message string, ids ...string) *Error {
	return &Error{Code: code, Message: message, IDs: ids}
}

// Wrap creates an Error with the given code around an existing error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) is an *Error with code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// DuplicateIdentity creates a CodeDuplicateIdentity error.
func DuplicateIdentity(id string) *Error {
	return New(CodeDuplicateIdentity, "duplicate record identity", id)
}

// OverwriteRejected creates a CodeOverwriteRejected error.
func OverwriteRejected(ids ...string) *Error {
	return New(CodeOverwriteRejected, "objects already exist in store", ids...)
}

// NotFound creates a CodeNotFound error.
func NotFound(ids ...string) *Error {
	return New(CodeNotFound, "no records found for ids", ids...)
}

// Conflict creates a CodeConflict error.
func Conflict(ids ...string) *Error {
	return New(CodeConflict, "records were modified after the action was created", ids...)
}
