package loader

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/rescomp/internal/config"
	"github.com/conneroisu/rescomp/internal/errors"
)

func TestRegistryFromConfig(t *testing.T) {
	cfg := config.Default().Loaders

	r, err := NewRegistryFromConfig(cfg)
	require.NoError(t, err)

	tests := map[string]string{
		"a/b/style.css": "css",
		"STYLE.CSS":     "css",
		"card.html":     "html",
		"card.htm":      "html",
		"icon.svg":      "raw",
		"theme.scss":    "sass",
	}
	for path, want := range tests {
		l, ok := r.ForPath(path)
		require.True(t, ok, path)
		assert.Equal(t, want, l.Name(), path)
	}

	_, ok := r.ForPath("main.go")
	assert.False(t, ok)
	assert.Contains(t, r.Extensions(), "scss")
}

func TestRegistryFromConfig_CommandsOverrideRules(t *testing.T) {
	cfg := config.LoadersConfig{
		Rules:           map[string]string{"css": config.LoaderCSS},
		Commands:        map[string]config.CommandConfig{"css": {Command: "postcss"}},
		AllowedCommands: []string{"postcss"},
	}

	r, err := NewRegistryFromConfig(cfg)
	require.NoError(t, err)

	l, ok := r.ForPath("x.css")
	require.True(t, ok)
	assert.IsType(t, &CommandLoader{}, l)
}

func TestRegistryFromConfig_UnknownLoader(t *testing.T) {
	_, err := NewRegistryFromConfig(config.LoadersConfig{
		Rules: map[string]string{"css": "postcss"},
	})
	assert.ErrorContains(t, err, `unknown loader "postcss"`)
}

func TestRawLoader(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"icon.svg": "<svg/>"})

	req := NewRequest(filepath.Join(dir, "icon.svg"), dir, nil)
	res, err := NewRawLoader().Load(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(res.Content))
	assert.Nil(t, res.Segments)
	assert.Equal(t, []string{filepath.Join(dir, "icon.svg")}, req.FilesRead())
}

func TestCommandLoader_RejectsUnlistedCommand(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.scss": "a { b: c }"})

	l := NewCommandLoader("rm", "rm", []string{"-rf"}, []string{"sass"})
	req := NewRequest(filepath.Join(dir, "a.scss"), dir, nil)
	_, err := l.Load(context.Background(), req)

	require.Error(t, err)
	var rerr *errors.ResourceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, errors.ErrCodeCommandRejected, rerr.Code)
	assert.Empty(t, req.FilesRead())
}

func TestCommandLoader_RejectsShellMetacharacters(t *testing.T) {
	l := NewCommandLoader("sass", "sass", []string{"--stdin; rm -rf /"}, []string{"sass"})
	req := NewRequest("/tmp/a.scss", "/tmp", nil)

	_, err := l.Load(context.Background(), req)

	assert.Error(t, err)
}

func TestCommandLoader_PipesThroughCommand(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.scss": ".a { color: red; }"})

	l := NewCommandLoader("cat", "cat", nil, []string{"cat"})
	req := NewRequest(filepath.Join(dir, "a.scss"), dir, nil)
	res, err := l.Load(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, ".a { color: red; }", string(res.Content))
	assert.False(t, req.Diagnostics.HasErrors())
}

func TestCommandLoader_FailureBecomesDiagnostic(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.scss": "broken"})

	l := NewCommandLoader("false", "false", nil, []string{"false"})
	req := NewRequest(filepath.Join(dir, "a.scss"), dir, nil)
	res, err := l.Load(context.Background(), req)

	require.NoError(t, err)
	assert.Empty(t, res.Content)
	errs := req.Diagnostics.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "false failed", errs[0].Message)
	assert.Equal(t, filepath.Join(dir, "a.scss"), errs[0].File)
}
