package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Transcoder converts an encoded audio stream to the PCM output format.
type Transcoder interface {
	Transcode(ctx context.Context, src io.Reader, dst io.Writer) error
}

// PassthroughTranscoder copies sources that are already PCM.
type PassthroughTranscoder struct{}

func (PassthroughTranscoder) Transcode(ctx context.Context, src io.Reader, dst io.Writer) error {
	_, err := io.Copy(dst, &ctxReader{ctx: ctx, r: src})
	return err
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// FFmpegTranscoder runs an external ffmpeg process with the source on stdin
// and PCM on stdout.
type FFmpegTranscoder struct {
	// Path is the ffmpeg binary. Default: "ffmpeg"
	Path string

	// InputArgs are placed before "-i pipe:0".
	InputArgs []string
}

// Args returns the ffmpeg argument list.
func (f *FFmpegTranscoder) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, f.InputArgs...)
	args = append(args,
		"-i", "pipe:0",
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"pipe:1",
	)
	return args
}

func (f *FFmpegTranscoder) Transcode(ctx context.Context, src io.Reader, dst io.Writer) error {
	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, path, f.Args()...)
	// Set stdin before Start so exec owns the copy goroutine.
	cmd.Stdin = src
	cmd.Stdout = dst
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	err := cmd.Wait()
	if ctx.Err() != nil {
		return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		msg := strings.TrimSpace(stderr.String())
		if errors.As(err, &exitErr) && msg != "" {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}
