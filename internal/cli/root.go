// Package cli implements the eventstack command line tool: inspecting and
// appending to event stacks, and folding flow specs over them.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sctrl/eventstack/internal/es"
	"github.com/sctrl/eventstack/internal/store"
)

type options struct {
	dbPath  string
	format  string
	verbose bool
}

// NewRootCommand builds the eventstack command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "eventstack",
		Short:         "Append-only event stacks with fold-derived views",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("unknown format %q (want text or json)", opts.format)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.dbPath, "db", "eventstack.db", "path to the SQLite database")
	root.PersistentFlags().StringVar(&opts.format, "format", "text", "output format: text or json")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newAppendCommand(opts))
	root.AddCommand(newLogCommand(opts))
	root.AddCommand(newFoldCommand(opts))
	return root
}

// Main runs the CLI and returns the process exit code.
func Main() int {
	if err := NewRootCommand().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		return 1
	}
	return 0
}

func (o *options) openStore(cmd *cobra.Command) (es.Store, func() error, error) {
	s, err := store.OpenSQLite(cmd.Context(), o.dbPath)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}
