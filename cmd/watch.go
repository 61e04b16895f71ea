package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/rescomp/internal/config"
	"github.com/conneroisu/rescomp/internal/livereload"
	"github.com/conneroisu/rescomp/internal/logging"
	"github.com/conneroisu/rescomp/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Recompile resources when the files they read change",
	Long: `Compile every configured entry, then watch the context directory. On each
debounced batch of changes a new host generation is hashed and attached,
and only the resources whose recorded dependencies include a changed file
(plus new entries) are recompiled and re-emitted.

When livereload.addr is set, connected browsers receive a message naming
the recompiled resources, or the error of a failed compile.

Examples:
  rescomp watch                                   # Watch and recompile
  RESCOMP_LIVERELOAD_ADDR=localhost:35729 rescomp watch`,
	RunE: runWatch,
}

var watchFlags *StandardFlags

func init() {
	rootCmd.AddCommand(watchCmd)
	watchFlags = AddStandardFlags(watchCmd, []string{FormatText, FormatJSON, FormatYAML}, "build", "output")
	watchCmd.Flags().String("livereload", "", "Address to serve live reload on (e.g. localhost:35729)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	BindBuildFlags(cmd)
	SetViperBindings(viper.GetViper(), cmd.Flags(), map[string]string{"livereload": "livereload.addr"})

	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := newRebuilder(cfg, logger, cmd.OutOrStdout(), watchFlags)
	if err != nil {
		return err
	}
	return w.run(ctx)
}

// rebuilder recompiles affected resources for every batch of changes.
type rebuilder struct {
	s      *session
	logger logging.Logger
	out    io.Writer
	flags  *StandardFlags
	hub    *livereload.Hub

	// serializes rebuilds; the watcher may deliver batches back to back
	mu sync.Mutex
}

func newRebuilder(cfg *config.Config, logger logging.Logger, out io.Writer, flags *StandardFlags) (*rebuilder, error) {
	s, err := newSession(cfg, logger)
	if err != nil {
		return nil, err
	}
	r := &rebuilder{
		s:      s,
		logger: logger.WithComponent("watch"),
		out:    out,
		flags:  flags,
	}
	if cfg.LiveReload.Addr != "" {
		r.hub = livereload.NewHub(cfg.LiveReload.AllowedOrigins, logger)
	}
	return r, nil
}

func (r *rebuilder) run(ctx context.Context) error {
	if _, err := r.rebuild(ctx, nil); err != nil {
		return err
	}

	fw, err := watcher.NewFileWatcher(r.s.cfg.Watch.Debounce, r.s.ignored(), r.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Stop()

	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(watcher.NoDirFilter(r.s.ignored()...))
	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		_, err := r.rebuild(ctx, watcher.Paths(events))
		return err
	})

	if err := fw.AddRecursive(r.s.contextDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.s.contextDir, err)
	}
	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	errCh := make(chan error, 1)
	if r.hub != nil {
		go func() { errCh <- r.hub.Serve(ctx, r.s.cfg.LiveReload.Addr) }()
	}

	r.logger.Info(ctx, "Watching for changes",
		"context", r.s.contextDir,
		"directories", len(fw.WatchList()))

	select {
	case <-ctx.Done():
		r.logger.Info(context.Background(), "Stopping watch")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("live reload server failed: %w", err)
		}
		return nil
	}
}

// rebuild hashes a new generation and recompiles the resources affected by
// changed, or every entry when changed is nil. It returns the recompiled
// resources. Compile failures are reported, not returned.
func (r *rebuilder) rebuild(ctx context.Context, changed []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.s.newGeneration()
	if err != nil {
		return nil, err
	}
	entries, err := r.s.resources(b, nil)
	if err != nil {
		return nil, err
	}

	targets := entries
	if changed != nil {
		targets = r.affected(entries, changed)
	}
	if len(targets) == 0 {
		r.logger.Debug(ctx, "No resources affected", "changed", len(changed))
		return nil, nil
	}

	results, err := r.s.compileAll(ctx, targets)
	if err != nil {
		return nil, err
	}
	if _, err := r.s.emit(b, results); err != nil {
		r.logger.Error(ctx, err, "Failed to emit outputs")
	}
	if !r.flags.Quiet {
		if err := outputResults(r.out, r.flags.Format, results); err != nil {
			return nil, err
		}
	}
	r.notify(ctx, b.GenerationHash(), results)
	return targets, nil
}

// affected returns the entries whose dependency records include a changed
// file, plus entries that were never compiled.
func (r *rebuilder) affected(entries, changed []string) []string {
	deps := r.s.compiler.DependencyRegistry()

	current := make(map[string]bool, len(entries))
	for _, e := range entries {
		current[e] = true
	}

	set := make(map[string]bool)
	for _, file := range changed {
		abs, err := filepath.Abs(file)
		if err != nil {
			continue
		}
		for _, dependent := range deps.Dependents(abs) {
			if current[dependent] {
				set[dependent] = true
			}
		}
	}
	for _, e := range entries {
		if _, ok := deps.Lookup(e); !ok {
			set[e] = true
		}
	}

	targets := make([]string, 0, len(set))
	for t := range set {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets
}

func (r *rebuilder) notify(ctx context.Context, generation string, results []CompileResult) {
	if r.hub == nil {
		return
	}
	var ok []string
	for _, res := range results {
		if res.err != nil {
			if err := r.hub.ReportError(res.Path, res.err); err != nil {
				r.logger.Warn(ctx, err, "Live reload error broadcast failed", "path", res.Path)
			}
			continue
		}
		ok = append(ok, res.Path)
	}
	if len(ok) == 0 {
		return
	}
	if err := r.hub.Reload(generation, ok); err != nil {
		r.logger.Warn(ctx, err, "Live reload broadcast failed")
	}
}
