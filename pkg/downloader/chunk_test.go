package downloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkWriter(t *testing.T) {
	t.Run("SplitsAcrossWrites", func(t *testing.T) {
		dir := t.TempDir()
		var flushed []int
		w := NewChunkWriter(dir, 4, func(index, size int) {
			flushed = append(flushed, size)
		})

		n, err := w.Write([]byte("ab"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Empty(t, flushed)

		n, err = w.Write([]byte("cdefghij"))
		require.NoError(t, err)
		assert.Equal(t, 8, n)
		assert.Equal(t, []int{4, 4}, flushed)

		require.NoError(t, w.Close())
		assert.Equal(t, []int{4, 4, 2}, flushed)
		assert.Equal(t, 3, w.Chunks())
		assert.EqualValues(t, 10, w.Written())

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		assert.ElementsMatch(t, []string{"0.pcm", "1.pcm", "2.pcm"}, names)
	})

	t.Run("EmptyStreamWritesNothing", func(t *testing.T) {
		dir := t.TempDir()
		w := NewChunkWriter(dir, 4, nil)
		require.NoError(t, w.Close())
		assert.Zero(t, w.Chunks())

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("WriteAfterClose", func(t *testing.T) {
		w := NewChunkWriter(t.TempDir(), 4, nil)
		require.NoError(t, w.Close())
		_, err := w.Write([]byte("x"))
		assert.ErrorIs(t, err, os.ErrClosed)
		assert.NoError(t, w.Close())
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		w := NewChunkWriter(filepath.Join(t.TempDir(), "missing"), 2, nil)
		n, err := w.Write([]byte("abc"))
		assert.Error(t, err)
		assert.Equal(t, 2, n)
		assert.Zero(t, w.Chunks())
	})

	t.Run("DefaultChunkSize", func(t *testing.T) {
		w := NewChunkWriter(t.TempDir(), 0, nil)
		assert.Equal(t, ChunkSize, w.chunkSize)
	})
}

func TestChunkFileName(t *testing.T) {
	assert.Equal(t, "0.pcm", ChunkFileName(0))
	assert.Equal(t, "12.pcm", ChunkFileName(12))
}
