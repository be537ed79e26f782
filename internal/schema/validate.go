package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// Schema validation error codes (E200-E209)
const (
	ErrEmptyName         = "E200" // table or column name is empty
	ErrDuplicateTable    = "E201" // two tables share a name
	ErrDuplicateColumn   = "E202" // two columns of a table share a name
	ErrReservedColumn    = "E203" // column named "id"
	ErrInvalidColumnType = "E204" // storage class is not INTEGER, REAL or TEXT
	ErrUnknownReference  = "E205" // foreign key targets a missing table
	ErrInvalidReference  = "E206" // foreign key targets a column other than id
	ErrInvalidUnique     = "E207" // unique set is empty or names a missing column
	ErrReservedTableName = "E208" // table name collides with engine-owned names
)

// ValidationError is one problem found in a Schema.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors joins several validation problems into one error.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return "invalid schema: " + strings.Join(parts, "; ")
}

// Validate returns every problem found in s (does not fail fast).
func (s *Schema) Validate() []ValidationError {
	var errs []ValidationError
	tables := make(map[string]bool, len(s.Tables))

	for i, t := range s.Tables {
		field := fmt.Sprintf("tables[%d]", i)
		if t.Name == "" {
			errs = append(errs, ValidationError{Field: field, Message: "table name is required", Code: ErrEmptyName})
			continue
		}
		field = t.Name
		if strings.HasPrefix(t.Name, "sqlite_") || strings.HasPrefix(t.Name, "_tmp_") {
			errs = append(errs, ValidationError{Field: field, Message: "table name is reserved", Code: ErrReservedTableName})
		}
		if tables[t.Name] {
			errs = append(errs, ValidationError{Field: field, Message: "duplicate table name", Code: ErrDuplicateTable})
		}
		tables[t.Name] = true
	}

	for _, t := range s.Tables {
		if t.Name == "" {
			continue
		}
		cols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			field := t.Name + "." + c.Name
			switch {
			case c.Name == "":
				errs = append(errs, ValidationError{Field: t.Name, Message: "column name is required", Code: ErrEmptyName})
				continue
			case c.Name == IDColumn:
				errs = append(errs, ValidationError{Field: field, Message: "id is implicit and cannot be declared", Code: ErrReservedColumn})
			case cols[c.Name]:
				errs = append(errs, ValidationError{Field: field, Message: "duplicate column name", Code: ErrDuplicateColumn})
			}
			cols[c.Name] = true

			switch c.Type {
			case ir.SQLInteger, ir.SQLReal, ir.SQLText:
			default:
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("invalid storage class %q: must be INTEGER, REAL or TEXT", c.Type),
					Code:    ErrInvalidColumnType,
				})
			}

			if fk := c.ForeignKey; fk != nil {
				if !tables[fk.Table] {
					errs = append(errs, ValidationError{
						Field:   field,
						Message: fmt.Sprintf("references unknown table %q", fk.Table),
						Code:    ErrUnknownReference,
					})
				}
				if fk.Column != IDColumn {
					errs = append(errs, ValidationError{
						Field:   field,
						Message: fmt.Sprintf("references %s.%s: only id may be referenced", fk.Table, fk.Column),
						Code:    ErrInvalidReference,
					})
				}
				if c.Type != ir.SQLInteger {
					errs = append(errs, ValidationError{
						Field:   field,
						Message: "foreign key columns must be INTEGER",
						Code:    ErrInvalidColumnType,
					})
				}
			}
		}

		for i, u := range t.Uniques {
			field := fmt.Sprintf("%s.uniques[%d]", t.Name, i)
			if len(u.Columns) == 0 {
				errs = append(errs, ValidationError{Field: field, Message: "unique set is empty", Code: ErrInvalidUnique})
				continue
			}
			for _, name := range u.Columns {
				if _, ok := t.Column(name); !ok {
					errs = append(errs, ValidationError{
						Field:   field,
						Message: fmt.Sprintf("unknown column %q", name),
						Code:    ErrInvalidUnique,
					})
				}
			}
		}
	}
	return errs
}

// Check is Validate folded into a single error, or nil.
func (s *Schema) Check() error {
	if errs := s.Validate(); len(errs) > 0 {
		return ValidationErrors(errs)
	}
	return nil
}
