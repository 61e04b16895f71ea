package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/rescomp/internal/build"
	"github.com/conneroisu/rescomp/internal/compiler"
	"github.com/conneroisu/rescomp/internal/config"
	"github.com/conneroisu/rescomp/internal/errors"
	"github.com/conneroisu/rescomp/internal/logging"
	"github.com/conneroisu/rescomp/internal/validation"
)

// CompileResult is the outcome of compiling one resource.
type CompileResult struct {
	Path         string        `json:"path" yaml:"path"`
	Output       string        `json:"output,omitempty" yaml:"output,omitempty"`
	Bytes        int           `json:"bytes" yaml:"bytes"`
	Dependencies []string      `json:"dependencies" yaml:"dependencies"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`

	text string
	err  error
}

// session carries state shared by every build generation of one command
// invocation: the compiler with its caches and dependency records, and the
// file hash memo.
type session struct {
	cfg        *config.Config
	logger     logging.Logger
	errs       *errors.ErrorHandler
	hasher     *build.HashProvider
	compiler   *compiler.ResourceCompiler
	contextDir string
}

func newSession(cfg *config.Config, logger logging.Logger) (*session, error) {
	dir, err := cfg.ContextDir()
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeNoBuildContext, "cannot resolve context directory")
	}
	if err := validation.ValidateOutputDir(cfg.Build.OutDir); err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeConfigInvalid, err.Error()).
			WithContext("field", "build.out_dir")
	}
	return &session{
		cfg:        cfg,
		logger:     logger,
		errs:       errors.NewErrorHandler(logger),
		hasher:     build.NewHashProvider(cfg.Cache.MaxEntries * 4),
		compiler:   compiler.NewFromConfig(cfg, logger),
		contextDir: dir,
	}, nil
}

// newGeneration creates a host build for the current state of the context
// directory and attaches it to the compiler.
func (s *session) newGeneration() (*build.Build, error) {
	b, err := build.NewFromConfig(s.cfg, s.hasher, s.logger)
	if err != nil {
		return nil, err
	}
	inputs, err := b.InputFiles(s.ignored())
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "cannot list input files")
	}
	if _, err := b.Rehash(inputs); err != nil {
		return nil, err
	}
	s.compiler.Attach(b)
	return b, nil
}

// ignored lists directory names skipped when walking the context. The
// output directory is always skipped.
func (s *session) ignored() []string {
	ignore := append([]string(nil), s.cfg.Watch.Ignore...)
	return append(ignore, filepath.Base(filepath.Clean(s.cfg.Build.OutDir)))
}

// resources returns the resources named on the command line, or those
// matched by build.entries when there are none, relative to the context.
func (s *session) resources(b *build.Build, args []string) ([]string, error) {
	if len(args) > 0 {
		out := make([]string, 0, len(args))
		for _, arg := range args {
			rel, err := s.relative(arg)
			if err != nil {
				return nil, err
			}
			out = append(out, rel)
		}
		return out, nil
	}

	matches, err := b.ResolveEntries(s.cfg.Build.Entries, s.ignored())
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "cannot resolve build entries")
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := s.relative(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

// relative maps path to a slash-separated path inside the context
// directory. Relative arguments are taken relative to the working
// directory, matching shell completion.
func (s *session) relative(path string) (string, error) {
	if err := validation.ValidatePath(path); err != nil {
		return "", errors.NewValidationError(errors.ErrCodeInvalidPath, err.Error()).WithResource(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.WrapIO(err, errors.ErrCodeInvalidPath, "cannot resolve path")
	}
	rel, err := filepath.Rel(s.contextDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.NewValidationError(errors.ErrCodeInvalidPath,
			fmt.Sprintf("%s is outside the context directory %s", path, s.contextDir)).WithResource(path)
	}
	return filepath.ToSlash(rel), nil
}

// compileAll compiles paths concurrently. Failures are reported per
// result; the returned error is only set when ctx is cancelled.
func (s *session) compileAll(ctx context.Context, paths []string) ([]CompileResult, error) {
	results := make([]CompileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			start := time.Now()
			text, err := s.compiler.Compile(gctx, p)
			res := CompileResult{
				Path:         p,
				Bytes:        len(text),
				Dependencies: s.relativeAll(s.compiler.Dependencies(p)),
				Duration:     time.Since(start),
				text:         text,
				err:          err,
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				res.Error = err.Error()
				s.errs.Handle(gctx, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *session) relativeAll(files []string) []string {
	out := make([]string, len(files))
	for i, f := range files {
		if rel, err := filepath.Rel(s.contextDir, f); err == nil && !strings.HasPrefix(rel, "..") {
			out[i] = filepath.ToSlash(rel)
		} else {
			out[i] = f
		}
	}
	sort.Strings(out)
	return out
}

// emit writes every successful result and the host's secondary assets
// under the output directory and returns the number of files written.
func (s *session) emit(b *build.Build, results []CompileResult) (int, error) {
	outDir, err := s.cfg.OutputDir()
	if err != nil {
		return 0, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "cannot resolve output directory")
	}

	written := 0
	for i := range results {
		r := &results[i]
		if r.err != nil {
			continue
		}
		target := filepath.Join(outDir, filepath.FromSlash(r.Path))
		if err := build.WriteOutput(target, []byte(r.text)); err != nil {
			return written, err
		}
		r.Output = filepath.ToSlash(filepath.Join(s.cfg.Build.OutDir, r.Path))
		written++
	}

	assets, err := b.Emit(outDir)
	written += assets
	if err != nil {
		return written, err
	}
	s.logger.Debug(context.Background(), "Emitted outputs", "dir", outDir, "files", written, "assets", assets)
	return written, nil
}

// failures collects the errors of failed results.
func failures(results []CompileResult) error {
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	return errors.CombineErrors(errs...)
}

func printTexts(w io.Writer, results []CompileResult) {
	for _, r := range results {
		if r.err == nil {
			fmt.Fprint(w, r.text)
		}
	}
}
