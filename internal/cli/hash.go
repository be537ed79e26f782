package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/schema"
)

// VersionHash is the content hash of one schema version and its tables.
type VersionHash struct {
	Version int64       `json:"version"`
	Hash    string      `json:"hash"`
	Tables  []TableHash `json:"tables"`
}

// TableHash is the content hash of one table.
type TableHash struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	var version int64

	cmd := &cobra.Command{
		Use:   "hash [schema-file]",
		Short: "Print content hashes of schema versions",
		Long: `Print the content hash of every declared schema version and of each of
its tables. Hashes ignore declaration order and the version number, so two
versions with the same tables hash alike, and a table hash changes only
when that table does.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(rootOpts, version, args, cmd)
		},
	}

	cmd.Flags().Int64Var(&version, "version", 0, "only this schema version")

	return cmd
}

func runHash(opts *RootOptions, version int64, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	path, lerr := schemaPath(opts, args)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	versions, lerr := loadVersions(path)
	if lerr != nil {
		return failLoad(formatter, lerr)
	}
	if version != 0 {
		s, lerr := selectVersion(versions, version)
		if lerr != nil {
			return failLoad(formatter, lerr)
		}
		versions = []*schema.Schema{s}
	}

	hashes := make([]VersionHash, 0, len(versions))
	for _, s := range versions {
		vh, err := hashVersion(s)
		if err != nil {
			return fail(formatter, ExitFailure, ErrCodeGeneric, fmt.Sprintf("hashing version %d", s.Version), err)
		}
		hashes = append(hashes, vh)
	}

	return formatter.Result(hashes, func(w io.Writer) {
		for _, vh := range hashes {
			fmt.Fprintf(w, "version %d  %s\n", vh.Version, vh.Hash)
			for _, th := range vh.Tables {
				fmt.Fprintf(w, "  %-20s %s\n", th.Name, th.Hash)
			}
		}
	})
}

func hashVersion(s *schema.Schema) (VersionHash, error) {
	h, err := schema.Hash(s)
	if err != nil {
		return VersionHash{}, err
	}
	vh := VersionHash{Version: s.Version, Hash: h}
	for _, name := range s.TableNames() {
		t, _ := s.Lookup(name)
		th, err := t.Hash()
		if err != nil {
			return VersionHash{}, fmt.Errorf("table %s: %w", name, err)
		}
		vh.Tables = append(vh.Tables, TableHash{Name: name, Hash: th})
	}
	return vh, nil
}
