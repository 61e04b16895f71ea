// Package compiler turns style sheets and templates into their final text
// by running each through an isolated nested build of the attached host.
//
// The primary output of the nested build is either used as is (static
// extraction) or evaluated in a sandbox (module extraction). Secondary
// artifacts are merged into the host's artifact set, the files read are
// recorded per resource, and results are cached by host generation and by
// nested build hash.
package compiler

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/rescomp/internal/artifact"
	"github.com/conneroisu/rescomp/internal/cache"
	"github.com/conneroisu/rescomp/internal/config"
	"github.com/conneroisu/rescomp/internal/errors"
	"github.com/conneroisu/rescomp/internal/interfaces"
	"github.com/conneroisu/rescomp/internal/logging"
	"github.com/conneroisu/rescomp/internal/registry"
	"github.com/conneroisu/rescomp/internal/sandbox"
)

// scriptPattern matches files that are programs rather than resources.
var scriptPattern = regexp.MustCompile(`(?i)\.(c|m)?(j|t)sx?$`)

// IsScript reports whether path names a script file, which Compile rejects.
func IsScript(path string) bool {
	return scriptPattern.MatchString(path)
}

// Option configures a ResourceCompiler.
type Option func(*ResourceCompiler)

// WithEvaluator sets the evaluator used for module outputs.
func WithEvaluator(e sandbox.Evaluator) Option {
	return func(rc *ResourceCompiler) { rc.evaluator = e }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(rc *ResourceCompiler) { rc.logger = l }
}

// WithCache replaces the result cache.
func WithCache(c *cache.ResultCache) Option {
	return func(rc *ResourceCompiler) { rc.cache = c }
}

// WithDependencyRegistry replaces the dependency registry.
func WithDependencyRegistry(r *registry.DependencyRegistry) Option {
	return func(rc *ResourceCompiler) { rc.deps = r }
}

// ResourceCompiler compiles resources against an attached host build. It
// is safe for concurrent use.
type ResourceCompiler struct {
	mu         sync.RWMutex
	host       interfaces.Host
	contextDir string

	evaluator sandbox.Evaluator
	cache     *cache.ResultCache
	deps      *registry.DependencyRegistry
	logger    logging.Logger

	inflight singleflight.Group
	metrics  metricsRecorder
}

// New creates a compiler. Without options it uses a default sandbox, a
// cache of 1024 entries over 2 generations and an empty dependency
// registry.
func New(opts ...Option) *ResourceCompiler {
	rc := &ResourceCompiler{}
	for _, opt := range opts {
		opt(rc)
	}

	if rc.logger == nil {
		rc.logger = logging.NewNop()
	}
	rc.logger = rc.logger.WithComponent("compiler")
	if rc.evaluator == nil {
		rc.evaluator = sandbox.New(sandbox.Config{}, rc.logger)
	}
	if rc.cache == nil {
		rc.cache = cache.NewResultCache(1024, 2)
	}
	if rc.deps == nil {
		rc.deps = registry.NewDependencyRegistry()
	}
	return rc
}

// NewFromConfig creates a compiler with cache and sandbox limits taken from cfg.
func NewFromConfig(cfg *config.Config, logger logging.Logger, opts ...Option) *ResourceCompiler {
	if logger == nil {
		logger = logging.NewNop()
	}
	base := []Option{
		WithLogger(logger),
		WithCache(cache.NewResultCache(cfg.Cache.MaxEntries, cfg.Cache.Generations)),
		WithEvaluator(sandbox.New(sandbox.Config{
			Timeout:      cfg.Sandbox.Timeout,
			MaxCallStack: cfg.Sandbox.MaxCallStack,
		}, logger)),
	}
	return New(append(base, opts...)...)
}

// Attach makes host the build context for subsequent compiles. Attaching a
// host with the same context directory keeps caches and dependency records
// and advances the cache window to the host's generation. A different
// context directory starts from empty caches and records.
func (rc *ResourceCompiler) Attach(host interfaces.Host) {
	dir := host.ContextDir()

	rc.mu.Lock()
	previous := rc.contextDir
	rc.host = host
	rc.contextDir = dir
	changed := previous != "" && previous != dir
	if changed {
		rc.cache.Clear()
		rc.deps.Reset()
	}
	rc.mu.Unlock()

	ctx := context.Background()
	if changed {
		rc.logger.Info(ctx, "Context directory changed, cleared caches",
			"previous", previous,
			"context", dir)
	}

	evicted := rc.cache.Advance(host.GenerationHash())
	rc.logger.Debug(ctx, "Attached build context",
		"context", dir,
		"generation", host.GenerationHash(),
		"evicted", evicted)
}

// Compile returns the final text of the resource at path. Concurrent calls
// for the same path and host generation share one nested build, which runs
// to completion even if every caller stops waiting.
func (rc *ResourceCompiler) Compile(ctx context.Context, path string) (string, error) {
	start := time.Now()

	rc.mu.RLock()
	host := rc.host
	rc.mu.RUnlock()

	if host == nil {
		err := errors.NewConfigurationError("no build context attached; call Attach before Compile").
			WithResource(path)
		rc.metrics.record(compileOutcome{duration: time.Since(start), err: err})
		return "", err
	}
	if IsScript(path) {
		err := errors.NewInvalidResourceType(path)
		rc.metrics.record(compileOutcome{duration: time.Since(start), err: err})
		return "", err
	}

	key := host.GenerationHash() + "\x00" + host.ContextDir() + "\x00" + path
	ch := rc.inflight.DoChan(key, func() (interface{}, error) {
		return rc.compile(context.WithoutCancel(ctx), host, path)
	})

	select {
	case <-ctx.Done():
		err := ctx.Err()
		rc.metrics.record(compileOutcome{duration: time.Since(start), err: err})
		return "", err

	case res := <-ch:
		outcome := compileOutcome{duration: time.Since(start), err: res.Err, shared: res.Shared}
		if res.Err != nil {
			rc.metrics.record(outcome)
			return "", res.Err
		}
		out := res.Val.(*compileResult)
		outcome.sourceHit = out.sourceHit
		outcome.evalHit = out.evalHit
		rc.metrics.record(outcome)
		return out.text, nil
	}
}

type compileResult struct {
	text      string
	sourceHit bool
	evalHit   bool
}

func (rc *ResourceCompiler) compile(ctx context.Context, host interfaces.Host, path string) (*compileResult, error) {
	generation := host.GenerationHash()
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(host.ContextDir(), resolved)
	}

	perf := logging.StartOperation(rc.logger, "compile",
		"path", path,
		"generation", generation)

	nested := host.SpawnNestedBuild(resolved, path)
	out := &compileResult{}
	var evalMu sync.Mutex
	nested.RegisterPreFinalizeHook(func(ctx context.Context, set *artifact.Set) error {
		hit, err := rc.substitutePrimary(ctx, set, host.ContextDir(), generation, path)
		evalMu.Lock()
		out.evalHit = hit
		evalMu.Unlock()
		return err
	})

	result, err := nested.Run(ctx)
	if err == nil && result != nil && result.HasErrors() {
		err = errors.NewCompilationError(path, result.Diagnostics)
	}
	if err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}

	merged := artifact.Merge(host.Artifacts(), result.Artifacts, path)
	rc.whileAttached(host.ContextDir(), func() {
		rc.deps.Record(path, result.FilesRead)
	})

	if text, ok := rc.cache.Sources.Get(result.Hash); ok {
		out.text = text
		out.sourceHit = true
	} else {
		primary, ok := result.Artifacts.Get(path)
		if !ok {
			err := errors.NewInternalError(errors.ErrCodeMissingPrimary,
				fmt.Sprintf("nested build produced no output named %q", path), nil).
				WithResource(path)
			perf.EndWithError(ctx, err)
			return nil, err
		}
		out.text = string(primary.Source())
		rc.whileAttached(host.ContextDir(), func() {
			rc.cache.Sources.Set(result.Hash, out.text)
		})
	}

	perf.End(ctx,
		"nested_hash", result.Hash,
		"merged_assets", merged,
		"dependencies", len(result.FilesRead),
		"source_cache_hit", out.sourceHit,
		"evaluation_cache_hit", out.evalHit)
	return out, nil
}

// substitutePrimary replaces the primary artifact with its evaluated form,
// reusing the evaluation from earlier in the same host generation when
// there is one. It reports whether the evaluated cache was hit.
func (rc *ResourceCompiler) substitutePrimary(ctx context.Context, set *artifact.Set, dir, generation, primary string) (bool, error) {
	key := cache.EvaluatedKey(generation, primary)
	if cached, ok := rc.cache.Evaluated.Get(key); ok {
		set.Set(primary, cached)
		return true, nil
	}

	current, ok := set.Get(primary)
	if !ok {
		return false, nil
	}

	evaluated := current
	if current.Kind() == artifact.Module {
		text, err := rc.evaluator.Evaluate(ctx, sandbox.Output{
			Name:   primary,
			Source: string(current.Source()),
		})
		if err != nil {
			return false, err
		}
		evaluated = artifact.NewStatic(text)
	}

	rc.whileAttached(dir, func() {
		rc.cache.Evaluated.Set(key, evaluated)
	})
	set.Set(primary, evaluated)
	return false, nil
}

// whileAttached runs store while dir is the attached context directory.
// Results of a compile whose context has since been replaced are dropped
// so they cannot repopulate the cleared caches.
func (rc *ResourceCompiler) whileAttached(dir string, store func()) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.contextDir == dir {
		store()
	}
}

// Dependencies returns the files read by the last successful compile of
// path. Unknown paths yield an empty, non-nil slice.
func (rc *ResourceCompiler) Dependencies(path string) []string {
	return rc.deps.Get(path)
}

// DependencyRegistry exposes the dependency records for reverse lookups.
func (rc *ResourceCompiler) DependencyRegistry() *registry.DependencyRegistry {
	return rc.deps
}

// CacheStats returns statistics for the source and evaluated caches.
func (rc *ResourceCompiler) CacheStats() (sources, evaluated cache.Stats) {
	return rc.cache.Sources.Stats(), rc.cache.Evaluated.Stats()
}

// Metrics returns a snapshot of compile counters.
func (rc *ResourceCompiler) Metrics() Metrics {
	return rc.metrics.snapshot()
}

// ResetMetrics zeroes the compile counters.
func (rc *ResourceCompiler) ResetMetrics() {
	rc.metrics.reset()
}
