package build

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/conneroisu/rescomp/internal/artifact"
	"github.com/conneroisu/rescomp/internal/config"
	"github.com/conneroisu/rescomp/internal/errors"
	"github.com/conneroisu/rescomp/internal/interfaces"
	"github.com/conneroisu/rescomp/internal/loader"
	"github.com/conneroisu/rescomp/internal/logging"
)

// nestedBuild compiles a single entry in isolation from the host's
// artifact set. It runs at most once.
type nestedBuild struct {
	host   *Build
	entry  string
	output string

	mu    sync.Mutex
	hooks []interfaces.PreFinalizeHook
	ran   bool
}

var _ interfaces.NestedBuild = (*nestedBuild)(nil)

// RegisterPreFinalizeHook implements interfaces.NestedBuild.
func (n *nestedBuild) RegisterPreFinalizeHook(hook interfaces.PreFinalizeHook) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hooks = append(n.hooks, hook)
}

// Run implements interfaces.NestedBuild. Loader problems are reported as
// diagnostics; pre-finalize hooks run only when there are none.
func (n *nestedBuild) Run(ctx context.Context) (*interfaces.NestedResult, error) {
	n.mu.Lock()
	if n.ran {
		n.mu.Unlock()
		return nil, errors.NewInternalError("ERR_NESTED_BUILD_REUSED",
			fmt.Sprintf("nested build for %s already ran", n.output), nil)
	}
	n.ran = true
	hooks := append([]interfaces.PreFinalizeHook(nil), n.hooks...)
	n.mu.Unlock()

	perf := logging.StartOperation(n.host.logger, "nested build",
		"entry", n.entry,
		"output", n.output,
		"target", Target)

	entry := n.entry
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(n.host.contextDir, entry)
	}

	diagnostics := errors.NewDiagnosticCollector()
	req := loader.NewRequest(entry, n.host.contextDir, diagnostics)
	set := artifact.NewSet()

	if err := n.load(ctx, req, set); err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}

	hash := artifactHash(set)

	if !diagnostics.HasErrors() {
		for _, hook := range hooks {
			if err := hook(ctx, set); err != nil {
				perf.EndWithError(ctx, err)
				return nil, err
			}
		}
	}

	result := &interfaces.NestedResult{
		Artifacts:   set,
		Diagnostics: diagnostics.Diagnostics(),
		FilesRead:   req.FilesRead(),
		Hash:        hash,
	}
	perf.End(ctx,
		"hash", hash,
		"artifacts", set.Len(),
		"diagnostics", len(result.Diagnostics))
	return result, nil
}

// load runs the entry through its loader and fills set with the primary
// output, its source map and any secondary assets. Only cancellation is
// returned as an error.
func (n *nestedBuild) load(ctx context.Context, req *loader.Request, set *artifact.Set) error {
	l, ok := n.host.loaders.ForPath(req.Path)
	if !ok {
		req.Diagnostics.Add(errors.Diagnostic{
			File:     req.Path,
			Message:  fmt.Sprintf("no loader configured for %q files", filepath.Ext(req.Path)),
			Severity: errors.ErrorSeverityError,
		})
		return nil
	}

	res, err := l.Load(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req.Diagnostics.Add(errors.Diagnostic{
			File:     req.Path,
			Message:  fmt.Sprintf("%s loader failed", l.Name()),
			Severity: errors.ErrorSeverityError,
			Cause:    err,
		})
		return nil
	}

	primary, err := n.primaryArtifact(res.Content)
	if err != nil {
		return errors.NewInternalError("ERR_PRIMARY_ENCODE", "failed to encode primary output", err)
	}
	set.Set(n.output, primary)

	if n.host.sourceMaps {
		segments := res.Segments
		if segments == nil {
			segments = identitySegments(req.Path, res.Content)
		}
		data, err := buildSourceMap(filepath.Base(n.output), n.host.contextDir, segments)
		if err != nil {
			return errors.NewInternalError("ERR_SOURCE_MAP", "failed to encode source map", err)
		}
		set.Set(n.output+artifact.MapSuffix, artifact.New(artifact.SourceMap, data))
	}

	for _, asset := range req.Assets() {
		set.Set(asset.Name, artifact.New(artifact.Asset, asset.Source))
	}
	return nil
}

// primaryArtifact wraps compiled text for the configured extraction mode.
// Evaluate mode produces a CommonJS module whose completion value is the
// text.
func (n *nestedBuild) primaryArtifact(content []byte) (artifact.Artifact, error) {
	if n.host.extraction != config.ExtractionEvaluate {
		return artifact.NewStatic(string(content)), nil
	}
	literal, err := json.Marshal(string(content))
	if err != nil {
		return nil, err
	}
	return artifact.New(artifact.Module, []byte("module.exports = "+string(literal)+";\n")), nil
}

// artifactHash identifies a set by the names, kinds and contents of its
// entries, independent of insertion order.
func artifactHash(set *artifact.Set) string {
	names := set.Names()
	sort.Strings(names)

	var buf []byte
	for _, name := range names {
		a, _ := set.Get(name)
		buf = append(buf, name...)
		buf = append(buf, 0, byte(a.Kind()))
		buf = append(buf, artifact.ContentHash(a.Source())...)
		buf = append(buf, '\n')
	}
	return artifact.ContentHash(buf)
}
