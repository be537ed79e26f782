// Package cli implements the relq command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Config is loaded before any subcommand runs. Commands built
	// without the root fall back to defaults.
	Config *config.Config
	Logger *slog.Logger
}

// NewRootCommand creates the root command for the relq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "relq",
		Short: "relq - typed queries and schema migrations for SQLite",
		Long: `Declare SQLite schemas as versioned CUE or YAML files, print their DDL
and hashes, and migrate databases from one version to the next inside a
single exclusive transaction.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigFile, cmd.Flags())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: loading configuration: %v\n", err)
				return WrapExitError(ExitCommandError, "loading configuration", err)
			}
			opts.Config = cfg
			opts.Format = cfg.Format
			opts.Verbose = cfg.Verbose
			opts.Logger = cfg.Logger(cmd.ErrOrStderr())
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (default relq.yaml)")
	pf.String("db", "", "SQLite database path")
	pf.String("schema", "", "schema file (.cue, .yaml) or directory of .cue files")
	pf.String("driver", config.DefaultDriver, "database/sql driver (sqlite3|sqlite)")
	pf.String("dialect", config.DefaultDialect, "SQL dialect for printed statements (sqlite|postgres)")
	pf.String("log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewHashCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))

	return cmd
}

// settings returns the loaded configuration, or defaults when the
// command runs without the root.
func (o *RootOptions) settings() *config.Config {
	if o.Config != nil {
		return o.Config
	}
	format := o.Format
	if format == "" {
		format = config.DefaultFormat
	}
	return &config.Config{
		Driver:   config.DefaultDriver,
		Dialect:  config.DefaultDialect,
		LogLevel: config.DefaultLogLevel,
		Format:   format,
		Verbose:  o.Verbose,
	}
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.settings().Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
