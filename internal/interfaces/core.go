// Package interfaces defines the contract between the resource compiler and
// the build that hosts it. Keeping these types here lets the compiler be
// tested against fakes and lets any build system embed it.
package interfaces

import (
	"context"

	"github.com/conneroisu/rescomp/internal/artifact"
	"github.com/conneroisu/rescomp/internal/errors"
)

// Host is the enclosing build a compiler is attached to.
type Host interface {
	// ContextDir is the root directory relative resource paths resolve against.
	ContextDir() string

	// Artifacts is the host's output set. Compilers only insert into it
	// with insert-if-absent semantics.
	Artifacts() *artifact.Set

	// GenerationHash identifies the current host build generation.
	GenerationHash() string

	// SpawnNestedBuild prepares an isolated single-entry build for entryPath
	// whose primary artifact is named outputName.
	SpawnNestedBuild(entryPath, outputName string) NestedBuild
}

// PreFinalizeHook runs after a nested build has produced its artifacts and
// before they are sealed. It may replace entries in artifacts. A returned
// error fails the nested build.
type PreFinalizeHook func(ctx context.Context, artifacts *artifact.Set) error

// NestedBuild is a single-use isolated build.
type NestedBuild interface {
	RegisterPreFinalizeHook(hook PreFinalizeHook)

	// Run executes the build to completion. Diagnostics are reported in the
	// result. An error is returned only when the build could not finish,
	// for example because a hook failed.
	Run(ctx context.Context) (*NestedResult, error)
}

// NestedResult is what a completed nested build exposes.
type NestedResult struct {
	Artifacts   *artifact.Set
	Diagnostics []errors.Diagnostic
	// FilesRead lists absolute paths of every file the build read.
	FilesRead []string
	// Hash identifies the nested build's output. It is unrelated to the
	// host generation hash.
	Hash string
}

// HasErrors reports whether any diagnostic is at error severity or above.
func (r *NestedResult) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity >= errors.ErrorSeverityError {
			return true
		}
	}
	return false
}

// HashProvider produces content hashes for files.
type HashProvider interface {
	// FileHash returns the content hash of path.
	FileHash(path string) (string, error)

	// HashFiles returns a combined hash over every path.
	HashFiles(paths []string) (string, error)
}
