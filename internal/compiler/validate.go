package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/schema"
)

// Validation error codes for version lists (E120-E129). Problems inside
// one version keep the schema package's codes (E200-E299).
const (
	ErrNoVersions         = "E120" // nothing declared
	ErrDuplicateVersion   = "E121" // two declarations share a version
	ErrVersionNotPositive = "E122" // user_version 0 means "never stamped"
)

// ValidationError represents a schema file validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found in a schema file.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return "invalid schema file: " + strings.Join(parts, "; ")
}

// Validate checks a sorted list of schema versions and every schema in
// it. Returns all errors found (does not fail-fast).
func Validate(versions []*schema.Schema) ValidationErrors {
	var errs ValidationErrors

	if len(versions) == 0 {
		return ValidationErrors{{
			Field:   "versions",
			Message: "at least one schema version is required",
			Code:    ErrNoVersions,
		}}
	}

	seen := make(map[int64]bool)
	for _, s := range versions {
		field := fmt.Sprintf("version.%d", s.Version)

		if s.Version < 1 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "versions start at 1",
				Code:    ErrVersionNotPositive,
			})
		}
		if seen[s.Version] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("version %d declared more than once", s.Version),
				Code:    ErrDuplicateVersion,
			})
		}
		seen[s.Version] = true

		for _, e := range s.Validate() {
			errs = append(errs, ValidationError{
				Field:   field + "." + e.Field,
				Message: e.Message,
				Code:    e.Code,
			})
		}
	}
	return errs
}

// Find returns the declared version with the given number.
func Find(versions []*schema.Schema, version int64) (*schema.Schema, bool) {
	for _, s := range versions {
		if s.Version == version {
			return s, true
		}
	}
	return nil, false
}
