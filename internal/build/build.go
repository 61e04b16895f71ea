// Package build provides a concrete host build for the resource compiler.
//
// A Build owns the host artifact set and the generation hash of one build
// pass. It spawns single-entry nested builds that run a resource through
// its configured loader and expose the result as artifacts, diagnostics and
// the list of files read.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conneroisu/rescomp/internal/artifact"
	"github.com/conneroisu/rescomp/internal/config"
	"github.com/conneroisu/rescomp/internal/errors"
	"github.com/conneroisu/rescomp/internal/interfaces"
	"github.com/conneroisu/rescomp/internal/loader"
	"github.com/conneroisu/rescomp/internal/logging"
	"github.com/conneroisu/rescomp/internal/validation"
)

// Target is the environment nested builds compile for.
const Target = "node"

// Options configures a Build.
type Options struct {
	ContextDir string
	Loaders    *loader.Registry
	// Extraction is config.ExtractionStatic or config.ExtractionEvaluate.
	Extraction string
	SourceMaps bool
	// Fingerprint is mixed into the generation hash so configuration
	// changes start a new generation.
	Fingerprint string
	Hasher      *HashProvider
	Logger      logging.Logger
}

// Build is one pass of the host build.
type Build struct {
	contextDir  string
	loaders     *loader.Registry
	extraction  string
	sourceMaps  bool
	fingerprint string
	hasher      *HashProvider
	logger      logging.Logger

	artifacts *artifact.Set

	mu         sync.RWMutex
	generation string
}

var _ interfaces.Host = (*Build)(nil)

// New creates a build. The generation hash is empty until Rehash is called.
func New(opts Options) (*Build, error) {
	if opts.ContextDir == "" {
		return nil, errors.NewConfigurationError("build context directory is required")
	}
	dir, err := filepath.Abs(opts.ContextDir)
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeNoBuildContext, "cannot resolve context directory")
	}

	if opts.Loaders == nil {
		opts.Loaders = loader.NewRegistry()
	}
	switch opts.Extraction {
	case "":
		opts.Extraction = config.ExtractionStatic
	case config.ExtractionStatic, config.ExtractionEvaluate:
	default:
		return nil, errors.NewValidationError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown extraction mode %q", opts.Extraction))
	}
	if opts.Hasher == nil {
		opts.Hasher = NewHashProvider(4096)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	return &Build{
		contextDir:  dir,
		loaders:     opts.Loaders,
		extraction:  opts.Extraction,
		sourceMaps:  opts.SourceMaps,
		fingerprint: opts.Fingerprint,
		hasher:      opts.Hasher,
		logger:      opts.Logger.WithComponent("build"),
		artifacts:   artifact.NewSet(),
	}, nil
}

// NewFromConfig creates a build from configuration.
func NewFromConfig(cfg *config.Config, hasher *HashProvider, logger logging.Logger) (*Build, error) {
	dir, err := cfg.ContextDir()
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeNoBuildContext, "cannot resolve context directory")
	}
	loaders, err := loader.NewRegistryFromConfig(cfg.Loaders)
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid loader configuration")
	}
	return New(Options{
		ContextDir:  dir,
		Loaders:     loaders,
		Extraction:  cfg.Build.Extraction,
		SourceMaps:  cfg.Build.SourceMaps,
		Fingerprint: cfg.Fingerprint(),
		Hasher:      hasher,
		Logger:      logger,
	})
}

// ContextDir implements interfaces.Host.
func (b *Build) ContextDir() string { return b.contextDir }

// Artifacts implements interfaces.Host.
func (b *Build) Artifacts() *artifact.Set { return b.artifacts }

// GenerationHash implements interfaces.Host.
func (b *Build) GenerationHash() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.generation
}

// Loaders returns the loader registry nested builds use.
func (b *Build) Loaders() *loader.Registry { return b.loaders }

// Rehash computes the generation hash from the contents of inputs and the
// configuration fingerprint, and returns it.
func (b *Build) Rehash(inputs []string) (string, error) {
	files, err := b.hasher.HashFiles(inputs)
	if err != nil {
		return "", errors.WrapIO(err, errors.ErrCodeFileNotFound, "failed to hash build inputs")
	}

	generation := artifact.ContentHash([]byte(b.fingerprint + "\x00" + files))
	b.mu.Lock()
	b.generation = generation
	b.mu.Unlock()

	b.logger.Debug(context.Background(), "Computed build generation",
		"generation", generation,
		"inputs", len(inputs))
	return generation, nil
}

// SpawnNestedBuild implements interfaces.Host.
func (b *Build) SpawnNestedBuild(entryPath, outputName string) interfaces.NestedBuild {
	return &nestedBuild{
		host:   b,
		entry:  entryPath,
		output: outputName,
	}
}

// Emit writes every host artifact under outDir and returns the number of
// files written.
func (b *Build) Emit(outDir string) (int, error) {
	written := 0
	var emitErr error

	b.artifacts.Range(func(name string, a artifact.Artifact) bool {
		target, err := outputPath(outDir, name)
		if err != nil {
			emitErr = err
			return false
		}
		if err := writeFile(target, a.Source()); err != nil {
			emitErr = err
			return false
		}
		written++
		return true
	})

	if emitErr == nil && written > 0 {
		b.logger.Info(context.Background(), "Emitted artifacts", "count", written, "out_dir", outDir)
	}
	return written, emitErr
}

// outputPath joins an artifact name to outDir, rejecting names that would
// escape it.
func outputPath(outDir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.NewValidationError(errors.ErrCodeWriteFailed,
			fmt.Sprintf("artifact name %q escapes the output directory", name))
	}
	if err := validation.ValidatePath(clean); err != nil {
		return "", errors.NewValidationError(errors.ErrCodeWriteFailed,
			fmt.Sprintf("invalid artifact name %q", name)).
			WithContext("cause", err.Error())
	}
	return filepath.Join(outDir, clean), nil
}

// WriteOutput writes data to path, creating parent directories.
func WriteOutput(path string, data []byte) error {
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to create output directory").
			WithResource(path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to write output").
			WithResource(path)
	}
	return nil
}
