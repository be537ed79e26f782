package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/migrate"
	"github.com/roach88/relq/internal/schema"
)

// MigrateResult is the JSON payload of the migrate command.
type MigrateResult struct {
	Database string  `json:"database"`
	From     int64   `json:"from"`
	To       int64   `json:"to"`
	Applied  []int64 `json:"applied,omitempty"`
}

// MigrateFailure is the JSON payload of a failed migration.
type MigrateFailure struct {
	Database string              `json:"database"`
	Version  int64               `json:"version,omitempty"`
	Diff     []schema.Difference `json:"diff,omitempty"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var to int64

	cmd := &cobra.Command{
		Use:   "migrate [schema-file]",
		Short: "Bring a database up to a declared schema version",
		Long: `Migrate a database through every declared schema version up to the latest
(or --to). A new database is created empty at the first version. Versions
the database already has are skipped.

Each changed table is rebuilt: columns present in both versions with
compatible types are copied, new nullable columns are left NULL, and ids
are preserved. Tables no longer declared are dropped. All versions are
applied in one exclusive transaction; after each one dangling foreign keys
and any difference between the database and the declared schema abort the
whole run and leave the database untouched.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, to, args, cmd)
		},
	}

	cmd.Flags().Int64Var(&to, "to", 0, "target schema version (default latest)")

	return cmd
}

func runMigrate(opts *RootOptions, to int64, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()
	logger := opts.logger()

	path, lerr := schemaPath(opts, args)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	versions, lerr := loadVersions(path)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	target, lerr := selectVersion(versions, to)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	dbPath, lerr := databasePath(opts)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}

	st, lerr := openStore(ctx, opts, dbPath, true)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	defer st.Close()

	from, err := st.Version(ctx)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, "reading version of "+dbPath, err)
	}
	formatter.VerboseLog("%s is at version %d, target %d", dbPath, from, target.Version)

	result := MigrateResult{Database: dbPath, From: from, To: target.Version}
	for _, s := range versions {
		if s.Version > from && s.Version <= target.Version {
			result.Applied = append(result.Applied, s.Version)
		}
	}

	p, err := migrate.Prepare(ctx, st, migrate.WithLogger(logger))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, "starting migration", err)
	}
	m, ok, err := p.CreateEmpty(ctx, versions[0])
	if err != nil {
		return failMigration(formatter, dbPath, err)
	}
	if !ok {
		return fail(formatter, ExitFailure, ErrCodeRefused,
			fmt.Sprintf("%s is at version %d, older than the first declared version %d", dbPath, from, versions[0].Version), nil)
	}

	for _, s := range versions[1:] {
		if s.Version > target.Version {
			break
		}
		formatter.VerboseLog("Migrating to version %d", s.Version)
		m, err = m.Migrate(ctx, s, migrate.Automatic)
		if err != nil {
			return failMigration(formatter, dbPath, err)
		}
	}

	if _, ok, err = m.Finish(ctx); err != nil {
		return failMigration(formatter, dbPath, err)
	}
	if !ok {
		return fail(formatter, ExitFailure, ErrCodeRefused,
			fmt.Sprintf("%s is at version %d, newer than version %d", dbPath, from, target.Version), nil)
	}

	return formatter.Result(result, func(w io.Writer) {
		if len(result.Applied) == 0 {
			fmt.Fprintf(w, "\u2713 %s is at version %d, nothing to do\n", dbPath, target.Version)
			return
		}
		fmt.Fprintf(w, "\u2713 Migrated %s from version %d to %d\n", dbPath, from, target.Version)
	})
}

// failMigration reports a rolled back migration.
func failMigration(formatter *OutputFormatter, dbPath string, err error) error {
	code := ErrCodeMigration
	details := MigrateFailure{Database: dbPath}

	var merr *migrate.Error
	if errors.As(err, &merr) {
		details.Version = merr.Version
		details.Diff = merr.Diff
	}
	switch {
	case migrate.IsIntegrityError(err):
		code = ErrCodeIntegrity
	case migrate.IsDriftError(err):
		code = ErrCodeDrift
	}

	msg := fmt.Sprintf("migration of %s rolled back: %v", dbPath, err)
	if ferr := formatter.Failure(code, msg, details, func(w io.Writer) {
		for _, d := range details.Diff {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitFailure, code, err)
}
