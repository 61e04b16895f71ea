package compiler

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/rescomp/internal/artifact"
	"github.com/conneroisu/rescomp/internal/cache"
	"github.com/conneroisu/rescomp/internal/config"
	"github.com/conneroisu/rescomp/internal/errors"
)

func TestCompile_RejectsScripts(t *testing.T) {
	host := newFakeHost("/ctx", "g1", staticOutput("x", "h"))
	rc := New()
	rc.Attach(host)

	for _, path := range []string{"a.js", "a.ts", "a.mjs", "a.cjs", "a.mts", "a.cts", "a.jsx", "a.tsx", "dir/b.js"} {
		t.Run(path, func(t *testing.T) {
			_, err := rc.Compile(context.Background(), path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidResourceType(err))
		})
	}
	assert.Equal(t, 0, host.spawnCount())
}

func TestIsScript(t *testing.T) {
	assert.True(t, IsScript("x.js"))
	assert.True(t, IsScript("x.tsx"))
	assert.False(t, IsScript("x.json"))
	assert.False(t, IsScript("x.css"))
	assert.False(t, IsScript("x.html"))
	assert.False(t, IsScript("js"))
	assert.True(t, IsScript("LEGACY.JS"))
	assert.True(t, IsScript("App.Tsx"))
}

func TestCompile_RequiresAttach(t *testing.T) {
	rc := New()

	_, err := rc.Compile(context.Background(), "a.html")

	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
	assert.Equal(t, int64(1), rc.Metrics().FailedCompiles)
}

func TestCompile_ReadsPrimarySourceOnceForIdenticalBuilds(t *testing.T) {
	var reads atomic.Int64
	host := newFakeHost("/ctx", "g1", func(string, string) nestedPlan {
		return nestedPlan{
			primary: &countingArtifact{kind: artifact.Static, source: []byte("body{}"), reads: &reads},
			hash:    "same",
		}
	})
	rc := New()
	rc.Attach(host)

	first, err := rc.Compile(context.Background(), "a.css")
	require.NoError(t, err)
	second, err := rc.Compile(context.Background(), "a.css")
	require.NoError(t, err)

	assert.Equal(t, "body{}", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, host.spawnCount(), "both nested builds still execute")
	assert.Equal(t, int64(1), reads.Load())

	m := rc.Metrics()
	assert.Equal(t, int64(2), m.SuccessfulCompiles)
	assert.Equal(t, int64(1), m.SourceCacheHits)
	assert.Equal(t, int64(1), m.EvaluationCacheHits)
	assert.InDelta(t, 50.0, m.CacheHitRate(), 0.001)
}

func TestDependencies(t *testing.T) {
	host := newFakeHost("/ctx", "g1", staticOutput("<a>", "h", "a.html", "shared.scss"))
	rc := New()
	rc.Attach(host)

	unknown := rc.Dependencies("unknown.html")
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)

	_, err := rc.Compile(context.Background(), "a.html")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.html", "shared.scss"}, rc.Dependencies("a.html"))
	assert.Equal(t, []string{"a.html"}, rc.DependencyRegistry().Dependents("shared.scss"))
}

func TestCompile_MergesSecondaryArtifacts(t *testing.T) {
	host := newFakeHost("/ctx", "g1", func(_ string, output string) nestedPlan {
		return nestedPlan{
			primary: artifact.NewStatic("<button>"),
			extra: map[string]artifact.Artifact{
				"common.css":                artifact.NewStatic("body{color:red}"),
				output + artifact.MapSuffix: artifact.New(artifact.SourceMap, []byte("{}")),
				"assets/icon.1234abcd.png":  artifact.New(artifact.Asset, []byte("PNG")),
			},
			hash: "h",
		}
	})
	original := artifact.NewStatic("body{}")
	host.artifacts.Set("common.css", original)

	rc := New()
	rc.Attach(host)
	text, err := rc.Compile(context.Background(), "button.html")
	require.NoError(t, err)

	assert.Equal(t, "<button>", text)
	common, ok := host.artifacts.Get("common.css")
	require.True(t, ok)
	assert.Same(t, original, common)
	assert.False(t, host.artifacts.Has("button.html"))
	assert.False(t, host.artifacts.Has("button.html.map"))
	assert.True(t, host.artifacts.Has("assets/icon.1234abcd.png"))
}

func TestCompile_DiagnosticsBecomeCompilationError(t *testing.T) {
	host := newFakeHost("/ctx", "g1", func(string, string) nestedPlan {
		return nestedPlan{
			diagnostics: []errors.Diagnostic{
				{Message: "missing selector", Severity: errors.ErrorSeverityError},
				{Message: "unterminated string", Severity: errors.ErrorSeverityError},
			},
			filesRead: []string{"broken.html"},
			hash:      "h",
		}
	})
	rc := New()
	rc.Attach(host)

	_, err := rc.Compile(context.Background(), "broken.html")

	require.Error(t, err)
	assert.True(t, errors.IsCompilationError(err))
	assert.Contains(t, err.Error(), "missing selector\nunterminated string")
	assert.Empty(t, rc.Dependencies("broken.html"), "failed compiles record nothing")
	assert.Equal(t, 0, host.artifacts.Len())
}

func TestCompile_WarningsDoNotFail(t *testing.T) {
	host := newFakeHost("/ctx", "g1", func(string, string) nestedPlan {
		return nestedPlan{
			primary:     artifact.NewStatic("ok"),
			diagnostics: []errors.Diagnostic{{Message: "deprecated", Severity: errors.ErrorSeverityWarning}},
			hash:        "h",
		}
	})
	rc := New()
	rc.Attach(host)

	text, err := rc.Compile(context.Background(), "a.css")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestCompile_RunErrorReturnedUnchanged(t *testing.T) {
	boom := stderrors.New("hook exploded")
	host := newFakeHost("/ctx", "g1", func(string, string) nestedPlan {
		return nestedPlan{runErr: boom}
	})
	rc := New()
	rc.Attach(host)

	_, err := rc.Compile(context.Background(), "a.css")

	assert.Same(t, boom, err)
}

func TestCompile_MissingPrimary(t *testing.T) {
	host := newFakeHost("/ctx", "g1", func(string, string) nestedPlan {
		return nestedPlan{hash: "h"}
	})
	rc := New()
	rc.Attach(host)

	_, err := rc.Compile(context.Background(), "a.css")

	var rerr *errors.ResourceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, errors.ErrCodeMissingPrimary, rerr.Code)
}

func TestCompile_ResolvesEntryAgainstContext(t *testing.T) {
	host := newFakeHost("/ctx", "g1", staticOutput("x", "h"))
	rc := New()
	rc.Attach(host)

	_, err := rc.Compile(context.Background(), "styles/a.css")
	require.NoError(t, err)
	_, err = rc.Compile(context.Background(), "/abs/b.css")
	require.NoError(t, err)

	assert.Equal(t, []string{"/ctx/styles/a.css", "/abs/b.css"}, host.entries)
	assert.Equal(t, []string{"styles/a.css", "/abs/b.css"}, host.spawned)
}

func moduleOutput(source, hash string) func(string, string) nestedPlan {
	return func(string, string) nestedPlan {
		return nestedPlan{primary: artifact.New(artifact.Module, []byte(source)), hash: hash}
	}
}

func TestCompile_EvaluatesModulesOncePerGeneration(t *testing.T) {
	eval := &fakeEvaluator{result: "evaluated"}
	host := newFakeHost("/ctx", "g1", moduleOutput("module.exports = 'x';", "h1"))
	rc := New(WithEvaluator(eval))
	rc.Attach(host)

	text, err := rc.Compile(context.Background(), "a.css")
	require.NoError(t, err)
	assert.Equal(t, "evaluated", text)

	_, err = rc.Compile(context.Background(), "a.css")
	require.NoError(t, err)
	assert.Equal(t, int64(1), eval.calls.Load())

	// a different primary in the same generation is evaluated separately
	_, err = rc.Compile(context.Background(), "b.css")
	require.NoError(t, err)
	assert.Equal(t, int64(2), eval.calls.Load())

	next := newFakeHost("/ctx", "g2", moduleOutput("module.exports = 'x';", "h1"))
	rc.Attach(next)
	_, err = rc.Compile(context.Background(), "a.css")
	require.NoError(t, err)
	assert.Equal(t, int64(3), eval.calls.Load())
}

func TestCompile_EvaluationFailureIsNotCached(t *testing.T) {
	eval := &fakeEvaluator{err: errors.NewEvaluationError("a.css", stderrors.New("thrown"))}
	host := newFakeHost("/ctx", "g1", moduleOutput("throw 1", "h1"))
	rc := New(WithEvaluator(eval))
	rc.Attach(host)

	_, err := rc.Compile(context.Background(), "a.css")
	assert.True(t, errors.IsEvaluationError(err))

	_, err = rc.Compile(context.Background(), "a.css")
	assert.True(t, errors.IsEvaluationError(err))
	assert.Equal(t, int64(2), eval.calls.Load())
	assert.Empty(t, rc.Dependencies("a.css"))
}

func TestCompile_WithSandbox(t *testing.T) {
	t.Run("string result", func(t *testing.T) {
		host := newFakeHost("/ctx", "g1", moduleOutput(`module.exports = "<p>" + "hi" + "</p>";`, "h"))
		rc := New()
		rc.Attach(host)

		text, err := rc.Compile(context.Background(), "p.html")
		require.NoError(t, err)
		assert.Equal(t, "<p>hi</p>", text)
	})

	t.Run("number result", func(t *testing.T) {
		host := newFakeHost("/ctx", "g1", moduleOutput("module.exports = 42", "h"))
		rc := New()
		rc.Attach(host)

		_, err := rc.Compile(context.Background(), "p.html")
		assert.True(t, errors.IsWrongResultTypeError(err))
		assert.Contains(t, err.Error(), "p.html")
	})

	t.Run("thrown exception", func(t *testing.T) {
		host := newFakeHost("/ctx", "g1", moduleOutput(`throw new Error("bad template")`, "h"))
		rc := New()
		rc.Attach(host)

		_, err := rc.Compile(context.Background(), "p.html")
		require.True(t, errors.IsEvaluationError(err))
		var exc *goja.Exception
		require.ErrorAs(t, err, &exc)
		assert.Contains(t, exc.Error(), "bad template")
	})
}

func TestCompile_DeduplicatesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	host := newFakeHost("/ctx", "g1", func(string, string) nestedPlan {
		return nestedPlan{primary: artifact.NewStatic("shared"), hash: "h", release: release}
	})
	rc := New()
	rc.Attach(host)

	const callers = 8
	results := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = rc.Compile(context.Background(), "a.css")
		}(i)
	}

	require.Eventually(t, func() bool { return host.spawnCount() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, host.spawnCount())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
	assert.Equal(t, int64(callers), rc.Metrics().DeduplicatedCompiles)
}

func TestCompile_CallerCancellationDoesNotAbortSharedBuild(t *testing.T) {
	release := make(chan struct{})
	host := newFakeHost("/ctx", "g1", func(string, string) nestedPlan {
		return nestedPlan{primary: artifact.NewStatic("done"), filesRead: []string{"a.css"}, hash: "h", release: release}
	})
	rc := New()
	rc.Attach(host)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := rc.Compile(ctx, "a.css")
		errCh <- err
	}()

	require.Eventually(t, func() bool { return host.spawnCount() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	assert.Eventually(t, func() bool {
		return len(rc.Dependencies("a.css")) == 1
	}, time.Second, time.Millisecond)
}

func TestAttach_SameContextKeepsState(t *testing.T) {
	rc := New()
	rc.Attach(newFakeHost("/ctx", "g1", staticOutput("x", "h", "a.css")))
	_, err := rc.Compile(context.Background(), "a.css")
	require.NoError(t, err)

	rc.Attach(newFakeHost("/ctx", "g2", staticOutput("x", "h", "a.css")))

	assert.Equal(t, []string{"a.css"}, rc.Dependencies("a.css"))
	sources, _ := rc.CacheStats()
	assert.Equal(t, 1, sources.Entries)
	assert.Equal(t, "g2", sources.Generation)
}

func TestAttach_DifferentContextClearsState(t *testing.T) {
	rc := New()
	rc.Attach(newFakeHost("/one", "g1", staticOutput("x", "h", "a.css")))
	_, err := rc.Compile(context.Background(), "a.css")
	require.NoError(t, err)

	rc.Attach(newFakeHost("/two", "g1", staticOutput("x", "h", "a.css")))

	assert.Empty(t, rc.Dependencies("a.css"))
	sources, evaluated := rc.CacheStats()
	assert.Equal(t, 0, sources.Entries)
	assert.Equal(t, 0, evaluated.Entries)
}

func TestAttach_DifferentContextDropsInFlightResults(t *testing.T) {
	release := make(chan struct{})
	old := newFakeHost("/one", "g1", func(string, string) nestedPlan {
		return nestedPlan{primary: artifact.NewStatic("stale"), filesRead: []string{"a.css"}, hash: "h", release: release}
	})
	rc := New()
	rc.Attach(old)

	done := make(chan string, 1)
	go func() {
		text, err := rc.Compile(context.Background(), "a.css")
		assert.NoError(t, err)
		done <- text
	}()
	require.Eventually(t, func() bool { return old.spawnCount() == 1 }, time.Second, time.Millisecond)

	rc.Attach(newFakeHost("/two", "g1", staticOutput("fresh", "h")))
	close(release)
	assert.Equal(t, "stale", <-done)

	assert.Empty(t, rc.Dependencies("a.css"))
	sources, evaluated := rc.CacheStats()
	assert.Equal(t, 0, sources.Entries)
	assert.Equal(t, 0, evaluated.Entries)

	text, err := rc.Compile(context.Background(), "a.css")
	require.NoError(t, err)
	assert.Equal(t, "fresh", text)
}

func TestAttach_CacheWindowEvictsOldGenerations(t *testing.T) {
	rc := New(WithCache(cache.NewResultCache(0, 2)))
	rc.Attach(newFakeHost("/ctx", "g1", staticOutput("x", "h1")))
	_, err := rc.Compile(context.Background(), "a.css")
	require.NoError(t, err)

	rc.Attach(newFakeHost("/ctx", "g2", staticOutput("x", "h1")))
	sources, evaluated := rc.CacheStats()
	assert.Equal(t, 1, sources.Entries)
	assert.Equal(t, 1, evaluated.Entries)

	rc.Attach(newFakeHost("/ctx", "g3", staticOutput("x", "h1")))
	sources, evaluated = rc.CacheStats()
	assert.Equal(t, 0, sources.Entries)
	assert.Equal(t, 0, evaluated.Entries)
	assert.Equal(t, int64(1), sources.Evictions)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.MaxEntries = 3
	rc := NewFromConfig(cfg, nil)

	sources, _ := rc.CacheStats()
	assert.Equal(t, 3, sources.MaxEntries)
}

func TestMetrics(t *testing.T) {
	m := Metrics{}
	assert.Equal(t, 0.0, m.SuccessRate())
	assert.Equal(t, 0.0, m.CacheHitRate())

	rc := New()
	rc.Attach(newFakeHost("/ctx", "g1", staticOutput("x", "h")))
	_, _ = rc.Compile(context.Background(), "a.css")
	_, _ = rc.Compile(context.Background(), "a.js")

	m = rc.Metrics()
	assert.Equal(t, int64(2), m.TotalCompiles)
	assert.InDelta(t, 50.0, m.SuccessRate(), 0.001)
	assert.Equal(t, m.TotalDuration/2, m.AverageDuration)

	rc.ResetMetrics()
	assert.Equal(t, Metrics{}, rc.Metrics())
}
