// Package sandbox evaluates compiled resource modules in an isolated
// JavaScript runtime and returns their string completion value.
//
// Each evaluation gets a fresh runtime holding only ECMAScript intrinsics and
// a minimal CommonJS shim (module, exports). There is no require, console,
// filesystem or network access.
package sandbox

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/conneroisu/rescomp/internal/errors"
	"github.com/conneroisu/rescomp/internal/logging"
)

// Default limits applied when Config leaves them unset.
const (
	DefaultTimeout      = 5 * time.Second
	DefaultMaxCallStack = 1024
)

// Output is a named piece of executable compiled output.
type Output struct {
	Name   string
	Source string
}

// Config bounds a single evaluation.
type Config struct {
	Timeout      time.Duration
	MaxCallStack int
}

// Evaluator turns compiled output into final text.
type Evaluator interface {
	Evaluate(ctx context.Context, out Output) (string, error)
}

// Sandbox is a goja-backed Evaluator. It is safe for concurrent use since
// every call builds its own runtime.
type Sandbox struct {
	timeout      time.Duration
	maxCallStack int
	logger       logging.Logger
}

var _ Evaluator = (*Sandbox)(nil)

// New creates a sandbox. A nil logger discards output.
func New(cfg Config, logger logging.Logger) *Sandbox {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxCallStack <= 0 {
		cfg.MaxCallStack = DefaultMaxCallStack
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sandbox{
		timeout:      cfg.Timeout,
		maxCallStack: cfg.MaxCallStack,
		logger:       logger.WithComponent("sandbox"),
	}
}

type interruptReason struct {
	timeout bool
	cause   error
}

// Evaluate runs out.Source as a module body and returns its completion value.
// A thrown exception, a timeout or a cancelled ctx yields an evaluation error;
// a non-string completion value yields a wrong-result-type error.
func (s *Sandbox) Evaluate(ctx context.Context, out Output) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.NewEvaluationError(out.Name, err)
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(s.maxCallStack)
	if err := installModuleShim(vm); err != nil {
		return "", errors.NewInternalError("ERR_SANDBOX_SETUP", "failed to prepare runtime", err)
	}

	timer := time.AfterFunc(s.timeout, func() {
		vm.Interrupt(interruptReason{timeout: true, cause: fmt.Errorf("evaluation exceeded %s", s.timeout)})
	})
	defer timer.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(interruptReason{cause: ctx.Err()})
		case <-done:
		}
	}()

	start := time.Now()
	value, err := vm.RunScript(out.Name, out.Source)
	if err != nil {
		return "", s.classify(ctx, out.Name, err)
	}

	result, ok := value.Export().(string)
	if !ok {
		return "", errors.NewWrongResultTypeError(out.Name, typeOf(value))
	}

	s.logger.Debug(ctx, "Evaluated compiled output",
		"output", out.Name,
		"bytes", len(result),
		"duration", time.Since(start).String())
	return result, nil
}

func (s *Sandbox) classify(ctx context.Context, name string, err error) error {
	var interrupted *goja.InterruptedError
	if stderrors.As(err, &interrupted) {
		reason, _ := interrupted.Value().(interruptReason)
		evalErr := errors.NewEvaluationError(name, reason.cause)
		if reason.timeout {
			evalErr.Code = errors.ErrCodeEvaluationTimeout
		}
		s.logger.Warn(ctx, evalErr, "Evaluation interrupted", "output", name)
		return evalErr
	}
	return errors.NewEvaluationError(name, err)
}

func installModuleShim(vm *goja.Runtime) error {
	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	if err := vm.Set("module", module); err != nil {
		return err
	}
	return vm.Set("exports", exports)
}

// typeOf names a value the way the JavaScript typeof operator would.
func typeOf(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}

	switch v.Export().(type) {
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case func(goja.FunctionCall) goja.Value:
		return "function"
	default:
		if _, ok := goja.AssertFunction(v); ok {
			return "function"
		}
		return "object"
	}
}
