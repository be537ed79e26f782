package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Versions []int64                    `json:"versions,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []VersionWarning           `json:"warnings,omitempty"`
}

// VersionWarning is a cycle warning found in one schema version.
type VersionWarning struct {
	Version int64 `json:"version"`
	compiler.CycleWarning
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema-file]",
		Short: "Validate a schema file without touching a database",
		Long: `Validate every schema version declared in a CUE or YAML file.

Reports syntax errors, invalid column types, unknown foreign key targets,
duplicate versions and other problems. Cycles of required foreign keys are
reported as warnings: SQLite accepts them, but no row can be inserted into
such a table.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	path, lerr := schemaPath(opts, args)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	formatter.VerboseLog("Validating %s", path)

	versions, lerr := loadVersions(path)
	if lerr != nil {
		if lerr.exitCode() != ExitFailure {
			return failLoad(formatter, lerr)
		}
		return outputValidationErrors(formatter, lerr.problems())
	}

	result := ValidationResult{Valid: true}
	for _, s := range versions {
		result.Versions = append(result.Versions, s.Version)
		formatter.VerboseLog("Version %d: %d table(s)", s.Version, len(s.Tables))
		for _, w := range compiler.AnalyzeCycles(s) {
			result.Warnings = append(result.Warnings, VersionWarning{Version: s.Version, CycleWarning: w})
		}
	}

	return formatter.Result(result, func(w io.Writer) {
		fmt.Fprintf(w, "\u2713 Schema file valid (versions %s)\n", joinVersions(result.Versions))
		for _, warn := range result.Warnings {
			fmt.Fprintf(w, "  warning: version %d: %s\n", warn.Version, warn.Message)
		}
	})
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	result := ValidationResult{Valid: false, Errors: errs}
	err := formatter.Failure(errs[0].Code, errs[0].Message, result, func(w io.Writer) {
		fmt.Fprintln(w, "\u2717 Validation failed")
		fmt.Fprintln(w)
		for _, e := range errs {
			fmt.Fprintf(w, "  %s: %s: %s\n", e.Code, e.Field, e.Message)
		}
	})
	if err != nil {
		return err
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

func joinVersions(vs []int64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ", ")
}
