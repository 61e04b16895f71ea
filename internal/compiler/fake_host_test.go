package compiler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/rescomp/internal/artifact"
	"github.com/conneroisu/rescomp/internal/errors"
	"github.com/conneroisu/rescomp/internal/interfaces"
	"github.com/conneroisu/rescomp/internal/sandbox"
)

// countingArtifact counts reads of its source.
type countingArtifact struct {
	kind   artifact.Kind
	source []byte
	reads  *atomic.Int64
}

func (c *countingArtifact) Source() []byte {
	c.reads.Add(1)
	return c.source
}

func (c *countingArtifact) Kind() artifact.Kind { return c.kind }

// nestedPlan describes what a fake nested build produces.
type nestedPlan struct {
	primary     artifact.Artifact
	extra       map[string]artifact.Artifact
	diagnostics []errors.Diagnostic
	filesRead   []string
	hash        string
	runErr      error
	// release, when set, blocks Run until closed.
	release chan struct{}
}

type fakeHost struct {
	dir        string
	generation string
	artifacts  *artifact.Set
	produce    func(entry, output string) nestedPlan

	mu      sync.Mutex
	spawned []string
	entries []string
}

func newFakeHost(dir, generation string, produce func(entry, output string) nestedPlan) *fakeHost {
	return &fakeHost{
		dir:        dir,
		generation: generation,
		artifacts:  artifact.NewSet(),
		produce:    produce,
	}
}

func (h *fakeHost) ContextDir() string       { return h.dir }
func (h *fakeHost) Artifacts() *artifact.Set { return h.artifacts }
func (h *fakeHost) GenerationHash() string   { return h.generation }

func (h *fakeHost) SpawnNestedBuild(entryPath, outputName string) interfaces.NestedBuild {
	h.mu.Lock()
	h.spawned = append(h.spawned, outputName)
	h.entries = append(h.entries, entryPath)
	h.mu.Unlock()
	return &fakeNestedBuild{output: outputName, plan: h.produce(entryPath, outputName)}
}

func (h *fakeHost) spawnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.spawned)
}

type fakeNestedBuild struct {
	output string
	plan   nestedPlan
	hooks  []interfaces.PreFinalizeHook
}

func (b *fakeNestedBuild) RegisterPreFinalizeHook(hook interfaces.PreFinalizeHook) {
	b.hooks = append(b.hooks, hook)
}

func (b *fakeNestedBuild) Run(ctx context.Context) (*interfaces.NestedResult, error) {
	if b.plan.release != nil {
		<-b.plan.release
	}
	if b.plan.runErr != nil {
		return nil, b.plan.runErr
	}

	set := artifact.NewSet()
	if b.plan.primary != nil {
		set.Set(b.output, b.plan.primary)
	}
	for name, a := range b.plan.extra {
		set.Set(name, a)
	}

	result := &interfaces.NestedResult{
		Artifacts:   set,
		Diagnostics: b.plan.diagnostics,
		FilesRead:   b.plan.filesRead,
		Hash:        b.plan.hash,
	}
	if result.HasErrors() {
		return result, nil
	}
	for _, hook := range b.hooks {
		if err := hook(ctx, set); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// staticOutput produces a static primary artifact with the given text.
func staticOutput(text, hash string, files ...string) func(string, string) nestedPlan {
	return func(string, string) nestedPlan {
		return nestedPlan{
			primary:   artifact.NewStatic(text),
			filesRead: files,
			hash:      hash,
		}
	}
}

// fakeEvaluator returns a fixed result and counts calls.
type fakeEvaluator struct {
	calls  atomic.Int64
	result string
	err    error
}

func (e *fakeEvaluator) Evaluate(_ context.Context, _ sandbox.Output) (string, error) {
	e.calls.Add(1)
	return e.result, e.err
}
