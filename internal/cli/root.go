// Package cli implements the ledger-sync command line.
package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-sync/internal/app"
	"github.com/dvloznov/ledger-sync/internal/config"
	"github.com/dvloznov/ledger-sync/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Config  string
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ledger-sync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledger-sync",
		Short: "Sync bank accounts into a budgeting ledger",
		Long: `ledger-sync pulls accounts and transactions from the banking API of each
configured profile and imports them into the profile's ledger budget.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "settings file (LEDGERSYNC_* variables override it)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewExecCommand(opts, execSync))
	cmd.AddCommand(NewExecCommand(opts, execTestProvider))
	cmd.AddCommand(NewExecCommand(opts, execTestLedger))
	cmd.AddCommand(NewProfilesCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newLogger returns the process logger. Structured logs stay quiet unless
// --verbose, so the user-facing log stream is readable.
func (o *RootOptions) newLogger() zerolog.Logger {
	if o.Verbose {
		return logger.NewWithLevel("debug")
	}
	return logger.NewWithLevel("warn")
}

func (o *RootOptions) settings() (*config.Settings, error) {
	return config.LoadSettings(o.Config)
}

func (o *RootOptions) openApp(ctx context.Context) (*app.App, error) {
	s, err := o.settings()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, s, o.newLogger())
}
