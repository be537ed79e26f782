package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/schema"
)

// InspectResult describes the schema found in a database.
type InspectResult struct {
	Database string        `json:"database"`
	Version  int64         `json:"version"`
	Hash     string        `json:"hash"`
	Tables   []TableResult `json:"tables"`
}

// TableResult is one table of a live database.
type TableResult struct {
	Name    string   `json:"name"`
	Hash    string   `json:"hash"`
	Columns []string `json:"columns"`
	Unique  []string `json:"unique,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the version and schema of a database",
		Long: `Read the tables, columns, foreign keys and unique constraints of a SQLite
database from its catalog, together with its user_version. Hashes are
comparable with the output of relq hash.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd)
		},
	}

	return cmd
}

func runInspect(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	dbPath, lerr := databasePath(opts)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	st, lerr := openStore(ctx, opts, dbPath, false)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	defer st.Close()

	live, err := schema.ReadLive(ctx, st.DB())
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, "reading schema of "+dbPath, err)
	}
	result, err := describe(dbPath, live)
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeGeneric, "hashing schema of "+dbPath, err)
	}

	return formatter.Result(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s: version %d  %s\n", result.Database, result.Version, result.Hash)
		for _, t := range result.Tables {
			fmt.Fprintf(w, "\n%s  %s\n", t.Name, t.Hash)
			for _, c := range t.Columns {
				fmt.Fprintf(w, "  %s\n", c)
			}
			for _, u := range t.Unique {
				fmt.Fprintf(w, "  UNIQUE (%s)\n", u)
			}
		}
	})
}

func describe(dbPath string, live *schema.Schema) (InspectResult, error) {
	h, err := schema.Hash(live)
	if err != nil {
		return InspectResult{}, err
	}
	result := InspectResult{Database: dbPath, Version: live.Version, Hash: h, Tables: []TableResult{}}
	for _, t := range live.Tables {
		th, err := t.Hash()
		if err != nil {
			return InspectResult{}, fmt.Errorf("table %s: %w", t.Name, err)
		}
		tr := TableResult{Name: t.Name, Hash: th, Columns: []string{}}
		for _, c := range t.Columns {
			tr.Columns = append(tr.Columns, c.String())
		}
		for _, u := range t.Uniques {
			tr.Unique = append(tr.Unique, strings.Join(u.Columns, ", "))
		}
		result.Tables = append(result.Tables, tr)
	}
	return result, nil
}
