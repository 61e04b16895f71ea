// Package loader turns resource files into compiled text for a nested build.
//
// Each loader reads its entry through the Request so every file touched is
// recorded, reports problems as diagnostics rather than errors, and may
// produce secondary assets (images, fonts) that the build emits under
// content-hashed names.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/rescomp/internal/artifact"
	"github.com/conneroisu/rescomp/internal/errors"
)

// AssetDir is the directory secondary assets are emitted under.
const AssetDir = "assets"

// Loader compiles one resource file.
type Loader interface {
	Name() string
	// Load returns the compiled text. Problems in the resource are reported
	// on req.Diagnostics; a returned error means the loader itself failed.
	Load(ctx context.Context, req *Request) (*Result, error)
}

// Request carries one entry through a loader.
type Request struct {
	// Path is the absolute path of the entry.
	Path string
	// ContextDir is the absolute build context directory.
	ContextDir  string
	Diagnostics *errors.DiagnosticCollector

	mu        sync.Mutex
	filesRead []string
	seen      map[string]bool
	assets    map[string]Asset
}

// NewRequest creates a request for the entry at path.
func NewRequest(path, contextDir string, diagnostics *errors.DiagnosticCollector) *Request {
	if diagnostics == nil {
		diagnostics = errors.NewDiagnosticCollector()
	}
	return &Request{
		Path:        path,
		ContextDir:  contextDir,
		Diagnostics: diagnostics,
		seen:        make(map[string]bool),
		assets:      make(map[string]Asset),
	}
}

// ReadFile reads a file and records it as a dependency. Failed reads are
// recorded too, so a missing import that later appears triggers a rebuild.
func (r *Request) ReadFile(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if !r.seen[abs] {
		r.seen[abs] = true
		r.filesRead = append(r.filesRead, abs)
	}
	r.mu.Unlock()

	return os.ReadFile(abs)
}

// FilesRead returns every path read so far, in read order.
func (r *Request) FilesRead() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.filesRead))
	copy(out, r.filesRead)
	return out
}

// EmitAsset reads the file at path and registers it as a secondary asset,
// returning its content-hashed name. The same file is emitted once.
func (r *Request) EmitAsset(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if a, ok := r.assets[abs]; ok {
		r.mu.Unlock()
		return a.Name, nil
	}
	r.mu.Unlock()

	data, err := r.ReadFile(abs)
	if err != nil {
		return "", err
	}

	name := artifact.HashedName(AssetDir, abs, data)
	r.mu.Lock()
	r.assets[abs] = Asset{Name: name, Source: data, Origin: abs}
	r.mu.Unlock()
	return name, nil
}

// Assets returns registered assets sorted by name.
func (r *Request) Assets() []Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Asset is a secondary file referenced by a resource.
type Asset struct {
	Name   string
	Source []byte
	Origin string
}

// Segment records that Text in the output came from File starting at
// Line/Column (both zero-based). Segments concatenate to the full output.
type Segment struct {
	File   string
	Line   int
	Column int
	Text   string
}

// Result is a loader's output.
type Result struct {
	Content []byte
	// Segments map output back to sources. Nil means the output lines
	// correspond one to one with the entry's lines.
	Segments []Segment
}

// IsLocalReference reports whether ref points at a file relative to the
// referencing resource, as opposed to a URL, data URI, fragment or
// root-relative path.
func IsLocalReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "\\") {
		return false
	}
	if i := strings.IndexAny(ref, ":/?#"); i > 0 && ref[i] == ':' {
		return false
	}
	return true
}

// splitReference separates a reference into its path and any ?query or
// #fragment suffix.
func splitReference(ref string) (string, string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}

func diagnostic(file string, line, column int, message string, cause error) errors.Diagnostic {
	return errors.Diagnostic{
		File:     file,
		Line:     line,
		Column:   column,
		Message:  message,
		Severity: errors.ErrorSeverityError,
		Cause:    cause,
	}
}

// resolveFrom joins a relative reference to the directory of file.
func resolveFrom(file, ref string) string {
	return filepath.Join(filepath.Dir(file), filepath.FromSlash(ref))
}
