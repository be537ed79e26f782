package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/relq/internal/compiler"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/store"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeNoSchema      = "E002" // No schema file given
	ErrCodeNoDatabase    = "E003" // No database given
	ErrCodeLoadFailed    = "E004" // Schema file could not be read
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeCompileFailed = "E006" // CUE or YAML compile failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeInvalid       = "E008" // Schema file failed validation

	// Database errors
	ErrCodeDatabase       = "E010" // Database could not be opened or read
	ErrCodeUnknownVersion = "E011" // user_version not declared in the schema file
	ErrCodeDrift          = "E012" // Live schema differs from the declared one
	ErrCodeIntegrity      = "E013" // Dangling foreign keys
	ErrCodeMigration      = "E014" // Migration step failed
	ErrCodeRefused        = "E015" // Database version outside the declared range
)

// LoadError represents an error that occurred while loading a schema file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available

	// Invalid holds every validation problem when Code is ErrCodeInvalid.
	Invalid compiler.ValidationErrors
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// exitCode is ExitFailure for a schema file that was read but is wrong,
// ExitCommandError otherwise.
func (e *LoadError) exitCode() int {
	switch e.Code {
	case ErrCodeCompileFailed, ErrCodeInvalid:
		return ExitFailure
	default:
		return ExitCommandError
	}
}

// problems lists the error as validation errors.
func (e *LoadError) problems() []compiler.ValidationError {
	if len(e.Invalid) > 0 {
		return e.Invalid
	}
	return []compiler.ValidationError{{Field: "schema", Message: e.describe(), Code: e.Code}}
}

// describe is the message prefixed with the source position, if known.
func (e *LoadError) describe() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// schemaPath picks the schema file: the first argument, or the configured
// schema.
func schemaPath(opts *RootOptions, args []string) (string, *LoadError) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if p := opts.settings().Schema; p != "" {
		return p, nil
	}
	return "", &LoadError{Code: ErrCodeNoSchema, Message: "no schema file: pass one as argument, with --schema or in relq.yaml"}
}

// loadVersions reads and validates every schema version declared at path.
func loadVersions(path string) ([]*schema.Schema, *LoadError) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema file not found: %s", path)}
		}
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}

	versions, err := compiler.Load(path)
	if err == nil {
		return versions, nil
	}

	var (
		invalid    compiler.ValidationErrors
		compileErr *compiler.CompileError
	)
	switch {
	case errors.As(err, &invalid):
		return nil, &LoadError{Code: ErrCodeInvalid, Message: invalid.Error(), Invalid: invalid}
	case errors.As(err, &compileErr):
		return nil, &LoadError{Code: ErrCodeCompileFailed, Message: compileErr.Message, Pos: compileErr.Pos}
	case errors.Is(err, fs.ErrNotExist):
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	default:
		return nil, &LoadError{Code: ErrCodeCompileFailed, Message: err.Error()}
	}
}

// selectVersion returns the declared version v, or the latest when v is 0.
func selectVersion(versions []*schema.Schema, v int64) (*schema.Schema, *LoadError) {
	if v == 0 {
		return versions[len(versions)-1], nil
	}
	s, ok := compiler.Find(versions, v)
	if !ok {
		return nil, &LoadError{Code: ErrCodeUnknownVersion, Message: fmt.Sprintf("version %d is not declared", v)}
	}
	return s, nil
}

// databasePath picks the database: --db, or the configured database.
func databasePath(opts *RootOptions) (string, *LoadError) {
	if p := opts.settings().Database; p != "" {
		return p, nil
	}
	return "", &LoadError{Code: ErrCodeNoDatabase, Message: "no database: pass --db or set database in relq.yaml"}
}

// openStore opens the database at path. Unless create is set the file
// must already exist.
func openStore(ctx context.Context, opts *RootOptions, path string, create bool) (*store.Store, *LoadError) {
	if !create {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("database not found: %s", path)}
			}
			return nil, &LoadError{Code: ErrCodeDatabase, Message: err.Error()}
		}
	}
	cfg := opts.settings()
	st, err := store.Open(ctx, path, cfg.StoreOptions(opts.logger())...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDatabase, Message: err.Error()}
	}
	return st, nil
}

// failLoad reports a LoadError and returns the matching ExitError.
func failLoad(f *OutputFormatter, e *LoadError) error {
	_ = f.Error(e.Code, e.describe(), nil)
	return WrapExitError(e.exitCode(), e.Code, e)
}
