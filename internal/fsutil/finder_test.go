package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o600))
}

func TestFindFilesByExtension(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "b.hcl"))
	write(t, filepath.Join(dir, "a.hcl"))
	write(t, filepath.Join(dir, "notes.txt"))
	write(t, filepath.Join(dir, "nested", "c.hcl"))

	t.Run("directory is walked recursively in path order", func(t *testing.T) {
		files, err := FindFilesByExtension(dir, ".hcl")
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "a.hcl"),
			filepath.Join(dir, "b.hcl"),
			filepath.Join(dir, "nested", "c.hcl"),
		}, files)
	})

	t.Run("single file", func(t *testing.T) {
		files, err := FindFilesByExtension(filepath.Join(dir, "a.hcl"), ".hcl")
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "a.hcl")}, files)
	})

	t.Run("single file with another extension", func(t *testing.T) {
		_, err := FindFilesByExtension(filepath.Join(dir, "notes.txt"), ".hcl")
		assert.ErrorContains(t, err, "is not a .hcl file")
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := FindFilesByExtension(filepath.Join(dir, "nope"), ".hcl")
		assert.Error(t, err)
	})

	t.Run("empty extension panics", func(t *testing.T) {
		assert.Panics(t, func() { _, _ = FindFilesByExtension(dir, "") })
	})
}
