package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/schema"
)

// Error reports a migration that was aborted and rolled back.
//
// Migration errors include:
//   - Integrity violation: a foreign key points at a missing row
//   - Schema drift: the database does not match the declared schema
//   - Version order: a step does not move the version forward
//   - Execution failure: a statement failed to run
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Version is the schema version being established.
	Version int64

	// Diff lists how the live schema departs from the declared one
	// (schema drift only).
	Diff []schema.Difference

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes migration errors.
type ErrorCode string

const (
	// ErrCodeIntegrity indicates PRAGMA foreign_key_check reported rows.
	ErrCodeIntegrity ErrorCode = "INTEGRITY_VIOLATION"

	// ErrCodeSchemaDrift indicates the live schema differs from the declared one.
	ErrCodeSchemaDrift ErrorCode = "SCHEMA_DRIFT"

	// ErrCodeVersionOrder indicates a migration that does not increase the version.
	ErrCodeVersionOrder ErrorCode = "VERSION_ORDER"

	// ErrCodeExec indicates a statement or builder step failed.
	ErrCodeExec ErrorCode = "EXEC_FAILED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s (version=%d)", e.Code, e.Message, e.Version)
	if len(e.Diff) > 0 {
		parts := make([]string, len(e.Diff))
		for i, d := range e.Diff {
			parts[i] = d.String()
		}
		msg += ": " + strings.Join(parts, "; ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

func hasCode(err error, code ErrorCode) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// IsIntegrityError returns true if err is a foreign key violation.
// Uses errors.As to handle wrapped errors.
func IsIntegrityError(err error) bool {
	return hasCode(err, ErrCodeIntegrity)
}

// IsDriftError returns true if err reports schema drift.
func IsDriftError(err error) bool {
	return hasCode(err, ErrCodeSchemaDrift)
}

// IsExecError returns true if err is an execution failure.
func IsExecError(err error) bool {
	return hasCode(err, ErrCodeExec)
}

func execError(version int64, what string, err error) *Error {
	return &Error{Code: ErrCodeExec, Message: what, Version: version, Err: err}
}
