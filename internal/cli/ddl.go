package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// DDLResult is the JSON payload of the ddl command.
type DDLResult struct {
	Version    int64    `json:"version"`
	Dialect    string   `json:"dialect"`
	Statements []string `json:"statements"`
}

type ddlOptions struct {
	version int64
	output  string
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ddlOptions{}

	cmd := &cobra.Command{
		Use:   "ddl [schema-file]",
		Short: "Print the CREATE TABLE statements of a schema version",
		Long: `Print the CREATE TABLE statements that build one declared schema version
from an empty database. Tables come out in declaration order. The latest
version is used unless --version is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(rootOpts, opts, args, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.version, "version", 0, "schema version (default latest)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the statements to a file")

	return cmd
}

func runDDL(rootOpts *RootOptions, opts *ddlOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd)

	path, lerr := schemaPath(rootOpts, args)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	versions, lerr := loadVersions(path)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	s, lerr := selectVersion(versions, opts.version)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}

	dialect := rootOpts.settings().SQLDialect()
	stmts, err := s.DDL(dialect)
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeCompileFailed, fmt.Sprintf("version %d", s.Version), err)
	}
	result := DDLResult{Version: s.Version, Dialect: dialect.Name(), Statements: stmts}

	if opts.output != "" {
		var b strings.Builder
		writeStatements(&b, stmts)
		if err := os.WriteFile(opts.output, []byte(b.String()), 0644); err != nil {
			return fail(formatter, ExitCommandError, ErrCodeWriteFailed, "writing "+opts.output, err)
		}
		formatter.VerboseLog("Wrote %d statement(s) to %s", len(stmts), opts.output)
		return formatter.Result(result, func(w io.Writer) {
			fmt.Fprintf(w, "\u2713 Wrote version %d DDL to %s\n", s.Version, opts.output)
		})
	}

	return formatter.Result(result, func(w io.Writer) {
		writeStatements(w, stmts)
	})
}

func writeStatements(w io.Writer, stmts []string) {
	for _, stmt := range stmts {
		fmt.Fprintf(w, "%s;\n", stmt)
	}
}
