package build

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashProvider_FileHash(t *testing.T) {
	dir := t.TempDir()
	provider := NewHashProvider(16)

	tests := []struct {
		name    string
		content string
	}{
		{"basic", "body { color: red; }"},
		{"empty", ""},
		{"unicode", "こんにちは世界\n🎉"},
	}

	hashes := map[string]bool{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".css")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			hash, err := provider.FileHash(path)
			require.NoError(t, err)
			assert.NotEmpty(t, hash)
			hashes[hash] = true

			again, err := provider.FileHash(path)
			require.NoError(t, err)
			assert.Equal(t, hash, again)
		})
	}
	assert.Len(t, hashes, len(tests))
}

func TestHashProvider_MemoizesByMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.css")
	require.NoError(t, os.WriteFile(path, []byte("a{}"), 0o644))

	provider := NewHashProvider(16)
	_, err := provider.FileHash(path)
	require.NoError(t, err)
	_, err = provider.FileHash(path)
	require.NoError(t, err)

	stats := provider.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestHashProvider_Errors(t *testing.T) {
	dir := t.TempDir()
	provider := NewHashProvider(16)

	_, err := provider.FileHash(filepath.Join(dir, "missing"))
	assert.True(t, os.IsNotExist(err))

	_, err = provider.FileHash(dir)
	assert.ErrorContains(t, err, "is a directory")

	_, err = provider.HashFiles([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestHashProvider_HashFiles(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 20; i++ {
		path := filepath.Join(dir, "f"+strconv.Itoa(i)+".css")
		require.NoError(t, os.WriteFile(path, []byte("content "+strconv.Itoa(i)), 0o644))
		paths = append(paths, path)
	}

	provider := NewHashProvider(64)
	combined, err := provider.HashFiles(paths)
	require.NoError(t, err)
	assert.Len(t, combined, 8)

	reversed := make([]string, len(paths))
	for i, p := range paths {
		reversed[len(paths)-1-i] = p
	}
	again, err := provider.HashFiles(reversed)
	require.NoError(t, err)
	assert.Equal(t, combined, again)

	fewer, err := provider.HashFiles(paths[1:])
	require.NoError(t, err)
	assert.NotEqual(t, combined, fewer)

	empty, err := provider.HashFiles(nil)
	require.NoError(t, err)
	assert.Len(t, empty, 8)
}
