package query

import (
	"errors"
	"fmt"
)

// Error is a construction error detected while building a plan.
//
// Construction errors include:
//   - Scope mismatch: an expression built for one plan used in another
//   - Type mismatch: operand or column types that do not line up
//   - Unknown table or column: names missing from the schema
//   - Plan consumed: a plan compiled a second time
//
// The first error a plan sees is remembered; Build returns it.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes construction errors.
type ErrorCode string

const (
	// ErrCodeScopeMismatch indicates an expression crossed into an unrelated plan.
	ErrCodeScopeMismatch ErrorCode = "SCOPE_MISMATCH"

	// ErrCodeTypeMismatch indicates operand or column types disagree.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeUnknownColumn indicates a column missing from its table.
	ErrCodeUnknownColumn ErrorCode = "UNKNOWN_COLUMN"

	// ErrCodeUnknownTable indicates a table missing from the schema.
	ErrCodeUnknownTable ErrorCode = "UNKNOWN_TABLE"

	// ErrCodePlanConsumed indicates a plan was built more than once.
	ErrCodePlanConsumed ErrorCode = "PLAN_CONSUMED"

	// ErrCodeUnsupported indicates a shape the engine does not express.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"

	// ErrCodeMissingColumn indicates a write that leaves a column unset.
	ErrCodeMissingColumn ErrorCode = "MISSING_COLUMN"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) with(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func hasCode(err error, code ErrorCode) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}

// IsScopeError returns true if err is a scope mismatch.
// Uses errors.As to handle wrapped errors.
func IsScopeError(err error) bool {
	return hasCode(err, ErrCodeScopeMismatch)
}

// IsTypeError returns true if err is a type mismatch.
func IsTypeError(err error) bool {
	return hasCode(err, ErrCodeTypeMismatch)
}

// IsConsumedError returns true if err reports a plan built twice.
func IsConsumedError(err error) bool {
	return hasCode(err, ErrCodePlanConsumed)
}

// IsUnknownError returns true if err names a missing table or column.
func IsUnknownError(err error) bool {
	return hasCode(err, ErrCodeUnknownTable) || hasCode(err, ErrCodeUnknownColumn)
}
