package downloader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	var gotRef string
	r.Register("file", func(ref string) (Source, error) {
		gotRef = ref
		return newFakeSource(SourceInfo{}), nil
	})
	r.Register("bad", func(ref string) (Source, error) {
		return nil, errors.New("rejected")
	})

	assert.Equal(t, []string{"bad", "file"}, r.Kinds())

	kind, src, err := r.Source("file$/a/b.flac")
	require.NoError(t, err)
	assert.Equal(t, "file", kind)
	assert.NotNil(t, src)
	assert.Equal(t, "/a/b.flac", gotRef)

	_, _, err = r.Source("ftp$host/a")
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, _, err = r.Source("bad$x")
	assert.ErrorContains(t, err, "rejected")

	_, _, err = r.Source("garbage")
	assert.ErrorIs(t, err, ErrInvalidContentID)
}

func TestFactory(t *testing.T) {
	r := NewRegistry()
	r.Register("file", func(ref string) (Source, error) {
		return newFakeSource(SourceInfo{}), nil
	})
	root := t.TempDir()
	f := NewFactory(context.Background(), FactoryConfig{Root: root, ChunkSize: 8}, r)

	tr, err := f.New("file$a.flac")
	require.NoError(t, err)
	assert.Equal(t, "file$a.flac", tr.ContentID())
	assert.Equal(t, root+"/file_a.flac", tr.Dir())
	assert.Equal(t, 8, tr.chunkSize)
	assert.Equal(t, StreamableChunks, tr.threshold)
	assert.NoDirExists(t, tr.Dir())

	_, err = f.New("ftp$x")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
