package downloader

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFFmpegTranscoderArgs(t *testing.T) {
	f := &FFmpegTranscoder{InputArgs: []string{"-reconnect", "1"}}
	args := strings.Join(f.Args(), " ")

	assert.Contains(t, args, "-reconnect 1 -i pipe:0")
	assert.Contains(t, args, "-f s16le")
	assert.Contains(t, args, "-ar 48000")
	assert.Contains(t, args, "-ac 2")
	assert.True(t, strings.HasSuffix(args, "pipe:1"))
}

func TestFFmpegTranscoderMissingBinary(t *testing.T) {
	f := &FFmpegTranscoder{Path: filepath.Join(t.TempDir(), "no-ffmpeg")}
	err := f.Transcode(t.Context(), strings.NewReader("x"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start ffmpeg")
}

func TestPassthroughTranscoder(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, PassthroughTranscoder{}.Transcode(t.Context(), strings.NewReader("pcm"), &out))
	assert.Equal(t, "pcm", out.String())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := PassthroughTranscoder{}.Transcode(ctx, strings.NewReader("pcm"), &out)
	assert.ErrorIs(t, err, context.Canceled)
}
