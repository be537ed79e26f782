package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/relq/internal/compiler"
	"github.com/roach88/relq/internal/schema"
)

// Verification statuses.
const (
	StatusOK             = "ok"
	StatusDrift          = "drift"
	StatusIntegrity      = "integrity"
	StatusUnknownVersion = "unknown_version"
	StatusError          = "error"
)

// VerifyResult is the outcome of checking one database.
type VerifyResult struct {
	Database   string              `json:"database"`
	Version    int64               `json:"version"`
	Status     string              `json:"status"`
	Diff       []schema.Difference `json:"diff,omitempty"`
	Violations int                 `json:"violations,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "verify [database...]",
		Short: "Check databases against the declared schema of their version",
		Long: `Check that each database matches the schema declared for its user_version
and has no dangling foreign keys. Databases are read only and checked
concurrently. With no arguments the configured database is checked.

Exit code 1 if any database is at an undeclared version, differs from its
declared schema, has dangling foreign keys or cannot be read.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, jobs, args, cmd)
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "databases checked at once")

	return cmd
}

func runVerify(opts *RootOptions, jobs int, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	path, lerr := schemaPath(opts, nil)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	versions, lerr := loadVersions(path)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}

	dbs := args
	if len(dbs) == 0 {
		db, lerr := databasePath(opts)
		if lerr != nil {
			return failLoad(formatter, lerr)
		}
		dbs = []string{db}
	}
	if jobs < 1 {
		jobs = 1
	}

	results := make([]VerifyResult, len(dbs))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(jobs)
	for i, db := range dbs {
		g.Go(func() error {
			results[i] = verifyDatabase(ctx, opts, versions, db)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "verify interrupted", err)
	}

	failed := 0
	for _, r := range results {
		formatter.VerboseLog("%s: %s", r.Database, r.Status)
		if r.Status != StatusOK {
			failed++
		}
	}

	render := func(w io.Writer) {
		for _, r := range results {
			switch r.Status {
			case StatusOK:
				fmt.Fprintf(w, "\u2713 %s: version %d\n", r.Database, r.Version)
			case StatusDrift:
				fmt.Fprintf(w, "\u2717 %s: version %d differs from its declared schema\n", r.Database, r.Version)
				for _, d := range r.Diff {
					fmt.Fprintf(w, "    %s\n", d)
				}
			case StatusIntegrity:
				fmt.Fprintf(w, "\u2717 %s: %d dangling foreign key(s)\n", r.Database, r.Violations)
			case StatusUnknownVersion:
				fmt.Fprintf(w, "\u2717 %s: version %d is not declared\n", r.Database, r.Version)
			default:
				fmt.Fprintf(w, "\u2717 %s: %s\n", r.Database, r.Error)
			}
		}
	}

	if failed == 0 {
		return formatter.Result(results, render)
	}
	msg := fmt.Sprintf("%d of %d database(s) failed verification", failed, len(results))
	if err := formatter.Failure(ErrCodeDrift, msg, results, render); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// verifyDatabase checks one database. Problems are recorded in the result.
func verifyDatabase(ctx context.Context, opts *RootOptions, versions []*schema.Schema, path string) VerifyResult {
	result := VerifyResult{Database: path}

	st, lerr := openStore(ctx, opts, path, false)
	if lerr != nil {
		result.Status = StatusError
		result.Error = lerr.Message
		return result
	}
	defer st.Close()

	live, err := schema.ReadLive(ctx, st.DB())
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		return result
	}
	result.Version = live.Version

	declared, ok := compiler.Find(versions, live.Version)
	if !ok {
		result.Status = StatusUnknownVersion
		return result
	}
	if diff := schema.Diff(declared, live); len(diff) > 0 {
		result.Status = StatusDrift
		result.Diff = diff
		return result
	}

	n, err := foreignKeyViolations(ctx, st.DB())
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		return result
	}
	if n > 0 {
		result.Status = StatusIntegrity
		result.Violations = n
		return result
	}

	result.Status = StatusOK
	return result
}

// foreignKeyViolations counts the rows PRAGMA foreign_key_check reports.
func foreignKeyViolations(ctx context.Context, q schema.Querier) (int, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return 0, fmt.Errorf("foreign_key_check: %w", err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}
