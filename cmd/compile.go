package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/rescomp/internal/config"
	"github.com/conneroisu/rescomp/internal/logging"
)

var compileCmd = &cobra.Command{
	Use:     "compile [resources...]",
	Aliases: []string{"c"},
	Short:   "Compile resources into their final text",
	Long: `Compile each resource through a nested build of a fresh host generation.

Resources are taken from the arguments, or from the build.entries globs when
none are given. Compiled text is written under the output directory together
with every secondary asset the nested builds produced.

Examples:
  rescomp compile                        # Compile every configured entry
  rescomp compile src/main.css           # Compile one resource
  rescomp compile --print src/main.css   # Print the compiled text
  rescomp compile -f json                # Machine-readable summary`,
	RunE: runCompile,
}

var compileFlags *StandardFlags

func init() {
	rootCmd.AddCommand(compileCmd)
	compileFlags = AddStandardFlags(compileCmd, []string{FormatText, FormatJSON, FormatYAML}, "build", "output")
}

func runCompile(cmd *cobra.Command, args []string) error {
	BindBuildFlags(cmd)
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	return compileResources(cmd.Context(), cmd.OutOrStdout(), cfg, logger, compileFlags, args)
}

// compileResources compiles the requested resources against one host
// generation, emits the outputs and prints a summary. It fails when any
// resource failed.
func compileResources(ctx context.Context, w io.Writer, cfg *config.Config, logger logging.Logger, flags *StandardFlags, args []string) error {
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
	if len(paths) == 0 {
		return fmt.Errorf("no resources to compile: build.entries %v matched nothing", cfg.Build.Entries)
	}

	perf := logging.StartOperation(logger, "compile resources",
		"resources", len(paths),
		"generation", b.GenerationHash())

	results, err := s.compileAll(ctx, paths)
	if err != nil {
		perf.EndWithError(ctx, err)
		return err
	}

	if flags.Print {
		printTexts(w, results)
	} else {
		written, err := s.emit(b, results)
		if err != nil {
			perf.EndWithError(ctx, err)
			return err
		}
		if !flags.Quiet {
			if err := outputResults(w, flags.Format, results); err != nil {
				return err
			}
		}
		perf.End(ctx, "written", written)
	}

	m := s.compiler.Metrics()
	logger.Debug(ctx, "Compile metrics",
		"total", m.TotalCompiles,
		"success_rate", m.SuccessRate(),
		"cache_hit_rate", m.CacheHitRate())

	return failures(results)
}
