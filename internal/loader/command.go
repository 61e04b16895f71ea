package loader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/conneroisu/rescomp/internal/errors"
	"github.com/conneroisu/rescomp/internal/validation"
)

// CommandLoader compiles a resource with an external preprocessor such as
// sass. The file is written to the command's stdin, the command runs in the
// file's directory and its stdout becomes the compiled text. Each line of
// stderr becomes a diagnostic when the command fails.
type CommandLoader struct {
	name    string
	command string
	args    []string
	allowed []string
}

// NewCommandLoader creates a loader for command with args. The command must
// appear in allowed.
func NewCommandLoader(name, command string, args, allowed []string) *CommandLoader {
	return &CommandLoader{
		name:    name,
		command: command,
		args:    append([]string(nil), args...),
		allowed: append([]string(nil), allowed...),
	}
}

// Name implements Loader.
func (l *CommandLoader) Name() string { return l.name }

// Load implements Loader.
func (l *CommandLoader) Load(ctx context.Context, req *Request) (*Result, error) {
	if err := l.validateCommand(); err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeCommandRejected,
			fmt.Sprintf("command validation failed for %s", l.command)).
			WithResource(req.Path).
			WithContext("cause", err.Error())
	}

	src, err := req.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, l.command, l.args...)
	cmd.Dir = filepath.Dir(req.Path)
	cmd.Stdin = bytes.NewReader(src)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timed out: %w", l.command, ctx.Err())
		}

		reported := false
		scanner := bufio.NewScanner(&stderr)
		for scanner.Scan() {
			text := strings.TrimSpace(validation.SanitizeInput(scanner.Text()))
			if text == "" {
				continue
			}
			req.Diagnostics.Add(diagnostic(req.Path, 0, 0, l.command+": "+text, nil))
			reported = true
		}
		if !reported {
			req.Diagnostics.Add(diagnostic(req.Path, 0, 0, l.command+" failed", err))
		}
		return &Result{}, nil
	}

	return &Result{Content: stdout.Bytes()}, nil
}

// validateCommand validates the command and arguments to prevent command injection
func (l *CommandLoader) validateCommand() error {
	return validation.ValidateCommandLine(l.command, l.args, l.allowed)
}
