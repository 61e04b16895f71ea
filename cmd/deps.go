package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/rescomp/internal/config"
	"github.com/conneroisu/rescomp/internal/logging"
)

var depsCmd = &cobra.Command{
	Use:     "deps [resources...]",
	Aliases: []string{"d"},
	Short:   "List the files each resource depends on",
	Long: `Compile resources without writing outputs and list the files every
nested build read. Paths are relative to the context directory.

Examples:
  rescomp deps                   # Dependencies of every configured entry
  rescomp deps src/main.css      # Dependencies of one resource
  rescomp deps -f yaml           # Output as YAML`,
	RunE: runDeps,
}

var depsFlags *StandardFlags

func init() {
	rootCmd.AddCommand(depsCmd)
	depsFlags = AddStandardFlags(depsCmd, []string{FormatTable, FormatJSON, FormatYAML}, "output")
}

func runDeps(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	return listDependencies(cmd.Context(), cmd.OutOrStdout(), cfg, logger, depsFlags.Format, args)
}

func listDependencies(ctx context.Context, w io.Writer, cfg *config.Config, logger logging.Logger, format string, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	b, err := s.newGeneration()
	if err != nil {
		return err
	}
	paths, err := s.resources(b, args)
	if err != nil {
		return err
	}
	results, err := s.compileAll(ctx, paths)
	if err != nil {
		return err
	}

	entries := make([]DependencyEntry, len(results))
	for i, r := range results {
		entries[i] = DependencyEntry{
			Path:         r.Path,
			Dependencies: r.Dependencies,
			Error:        r.Error,
		}
	}
	return outputDependencies(w, format, entries)
}
