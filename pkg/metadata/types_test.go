package metadata

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	ci := NewCacheInfo("yt$ABC", "/loc0")
	assert.False(t, ci.Cached)
	assert.Equal(t, NoChunk, ci.StartChunk)
	assert.Equal(t, NoChunk, ci.EndChunk)
	assert.Zero(t, ci.SizeBytes)
	assert.Zero(t, ci.Playbacks)

	si := NewSongInfo("yt$ABC")
	assert.Equal(t, Unknown, si.Title)
	assert.Equal(t, Unknown, si.Artist)
	assert.Equal(t, Unknown, si.Link)
	assert.Equal(t, Unknown, si.ThumbnailURL)
	assert.Equal(t, UnknownDuration, si.Duration)
}

func TestSelectBestToRemove(t *testing.T) {
	entry := func(id string, cached bool, size, plays int64) *CacheInfo {
		return &CacheInfo{ContentID: id, Cached: cached, SizeBytes: size, Playbacks: plays}
	}

	tests := []struct {
		name    string
		entries []*CacheInfo
		locked  map[string]bool
		want    string
	}{
		{"empty", nil, nil, ""},
		{"highest ratio", []*CacheInfo{entry("a", true, 100, 1), entry("b", true, 101, 1)}, nil, "b"},
		{"locked skipped", []*CacheInfo{entry("a", true, 100, 1), entry("b", true, 101, 1)}, map[string]bool{"b": true}, "a"},
		{"uncached skipped", []*CacheInfo{entry("a", false, 500, 1), entry("b", true, 10, 1)}, nil, "b"},
		{"zero plays excluded", []*CacheInfo{entry("a", true, 500, 0)}, nil, ""},
		{"zero size excluded", []*CacheInfo{entry("a", true, 0, 3)}, nil, ""},
		{"tie keeps first", []*CacheInfo{entry("a", true, 200, 2), entry("b", true, 100, 1)}, nil, "a"},
		{"plays divide", []*CacheInfo{entry("a", true, 1000, 10), entry("b", true, 300, 1)}, nil, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectBestToRemove(tt.entries, func(id string) bool { return tt.locked[id] })
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			if assert.NotNil(t, got) {
				assert.Equal(t, tt.want, got.ContentID)
			}
		})
	}
}

func TestStoreErrors(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewNotFoundError("yt$ABC"))
	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsInvalidArgumentError(err))
	assert.Contains(t, err.Error(), "NotFound: content not found (content_id: yt$ABC)")

	cause := errors.New("disk full")
	ioErr := NewIOError("set size", "x", cause)
	assert.ErrorIs(t, ioErr, cause)
	assert.False(t, IsNotFoundError(ioErr))

	assert.True(t, IsInvalidArgumentError(NewInvalidArgumentError("bad")))
	assert.Equal(t, "Unknown(42)", ErrorCode(42).String())
}
