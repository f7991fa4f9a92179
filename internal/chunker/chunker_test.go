package chunker

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/dropbox-upload/internal/failure"
)

// writeSource creates a file of n random bytes and returns its path and content.
func writeSource(t *testing.T, n int) (string, []byte) {
	t.Helper()

	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "build.ipa")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path, data
}

// dirEntries returns the names of files left in dir.
func dirEntries(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}

func TestSplit_PartCountAndSizes(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		chunkSize int64
		wantParts int
	}{
		{"smaller than chunk", 10, 16, 1},
		{"exact multiple", 64, 16, 4},
		{"remainder", 70, 16, 5},
		{"exactly one chunk", 16, 16, 1},
		{"one byte chunks", 5, 1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, _ := writeSource(t, tt.size)
			dir := t.TempDir()

			parts, err := Split(src, tt.chunkSize, dir)
			require.NoError(t, err)
			require.Len(t, parts, tt.wantParts)

			for i, p := range parts {
				assert.Equal(t, i, p.Index)

				if i < len(parts)-1 {
					assert.Equal(t, tt.chunkSize, p.Size)
				} else {
					assert.LessOrEqual(t, p.Size, tt.chunkSize)
					assert.Positive(t, p.Size)
				}

				fi, statErr := os.Stat(p.Path)
				require.NoError(t, statErr)
				assert.Equal(t, p.Size, fi.Size())
				assert.Equal(t, dir, filepath.Dir(p.Path))
			}

			// Only the parts remain in dir; no stray empty window files.
			assert.Len(t, dirEntries(t, dir), tt.wantParts)
		})
	}
}

func TestSplit_RoundTrip(t *testing.T) {
	src, original := writeSource(t, 1000)

	parts, err := Split(src, 128, t.TempDir())
	require.NoError(t, err)

	var rebuilt bytes.Buffer

	for _, p := range parts {
		data, readErr := os.ReadFile(p.Path)
		require.NoError(t, readErr)
		rebuilt.Write(data)
	}

	assert.Equal(t, original, rebuilt.Bytes())
}

func TestSplit_EmptyFile(t *testing.T) {
	src, _ := writeSource(t, 0)
	dir := t.TempDir()

	parts, err := Split(src, 16, dir)
	require.NoError(t, err)
	assert.Empty(t, parts)
	assert.Empty(t, dirEntries(t, dir))
}

func TestSplit_MissingSource(t *testing.T) {
	_, err := Split(filepath.Join(t.TempDir(), "missing.ipa"), 16, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrIO)
}

func TestSplit_UnwritableDir(t *testing.T) {
	src, _ := writeSource(t, 32)

	_, err := Split(src, 16, filepath.Join(t.TempDir(), "does", "not", "exist"))
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrIO)
}

func TestSplit_InvalidChunkSize(t *testing.T) {
	src, _ := writeSource(t, 32)

	_, err := Split(src, 0, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrIO)
}

func TestRemove(t *testing.T) {
	src, _ := writeSource(t, 48)
	dir := t.TempDir()

	parts, err := Split(src, 16, dir)
	require.NoError(t, err)
	require.Len(t, parts, 3)

	// One part already gone must not fail the cleanup.
	require.NoError(t, os.Remove(parts[1].Path))

	require.NoError(t, Remove(parts))
	assert.Empty(t, dirEntries(t, dir))
}

func TestRemove_Nil(t *testing.T) {
	assert.NoError(t, Remove(nil))
}
