package sandbox

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/rescomp/internal/errors"
)

func TestEvaluateStringResults(t *testing.T) {
	sb := New(Config{}, nil)

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"module export", `module.exports = "body{color:red}";`, "body{color:red}"},
		{"expression completion", `"abc" + "def"`, "abcdef"},
		{"escaped json string", `module.exports = "line\nnext \"quoted\"";`, "line\nnext \"quoted\""},
		{"empty string", `module.exports = "";`, ""},
		{"computed", `var parts = ["a", "b"]; parts.join("-")`, "a-b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sb.Evaluate(context.Background(), Output{Name: "out.css", Source: tt.source})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateWrongResultType(t *testing.T) {
	sb := New(Config{}, nil)

	tests := []struct {
		source   string
		wantType string
	}{
		{`module.exports = 42;`, "number"},
		{`module.exports = {};`, "object"},
		{`true`, "boolean"},
		{`null`, "null"},
		{`var x;`, "undefined"},
		{`(function () {})`, "function"},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			_, err := sb.Evaluate(context.Background(), Output{Name: "bad.html", Source: tt.source})
			require.Error(t, err)
			assert.True(t, errors.IsWrongResultTypeError(err))
			assert.Contains(t, err.Error(), `"bad.html"`)
			assert.Contains(t, err.Error(), tt.wantType)
		})
	}
}

func TestEvaluateThrownException(t *testing.T) {
	sb := New(Config{}, nil)

	_, err := sb.Evaluate(context.Background(), Output{Name: "boom.css", Source: `throw new Error("boom")`})
	require.Error(t, err)
	assert.True(t, errors.IsEvaluationError(err))

	var exception *goja.Exception
	require.True(t, stderrors.As(err, &exception), "original exception must be reachable")
	assert.Contains(t, exception.Error(), "boom")
}

func TestEvaluateHasNoHostBindings(t *testing.T) {
	sb := New(Config{}, nil)

	for _, src := range []string{`require("fs")`, `console.log("x")`, `process.env`} {
		t.Run(src, func(t *testing.T) {
			_, err := sb.Evaluate(context.Background(), Output{Name: "x.css", Source: src})
			require.Error(t, err)
			assert.True(t, errors.IsEvaluationError(err))
		})
	}
}

func TestEvaluateFreshRuntime(t *testing.T) {
	sb := New(Config{}, nil)
	ctx := context.Background()

	_, err := sb.Evaluate(ctx, Output{Name: "a", Source: `globalThis.leak = 1; "ok"`})
	require.NoError(t, err)

	got, err := sb.Evaluate(ctx, Output{Name: "b", Source: `typeof leak`})
	require.NoError(t, err)
	assert.Equal(t, "undefined", got)
}

func TestEvaluateTimeout(t *testing.T) {
	sb := New(Config{Timeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	_, err := sb.Evaluate(context.Background(), Output{Name: "loop.css", Source: `while (true) {}`})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var re *errors.ResourceError
	require.True(t, stderrors.As(err, &re))
	assert.Equal(t, errors.ErrCodeEvaluationTimeout, re.Code)
	assert.True(t, errors.IsEvaluationError(err))
}

func TestEvaluateContextCancellation(t *testing.T) {
	sb := New(Config{Timeout: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := sb.Evaluate(ctx, Output{Name: "loop.css", Source: `for (;;) {}`})
	require.Error(t, err)
	assert.True(t, errors.IsEvaluationError(err))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = sb.Evaluate(ctx, Output{Name: "later.css", Source: `"x"`})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateCallStackLimit(t *testing.T) {
	sb := New(Config{MaxCallStack: 64}, nil)

	_, err := sb.Evaluate(context.Background(), Output{
		Name:   "recurse.css",
		Source: `function f(n) { return f(n + 1); } f(0)`,
	})
	require.Error(t, err)
	assert.True(t, errors.IsEvaluationError(err))
}

func TestEvaluateSyntaxError(t *testing.T) {
	sb := New(Config{}, nil)

	_, err := sb.Evaluate(context.Background(), Output{Name: "broken.css", Source: `module.exports = "unterminated`})
	require.Error(t, err)
	assert.True(t, errors.IsEvaluationError(err))
}
