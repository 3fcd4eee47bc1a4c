// Package file reads content from the local filesystem. Content ids look
// like "file$/music/album/track.flac".
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/dittocache/pkg/downloader"
)

// Kind is the content id prefix of local files.
const Kind = "file"

// Source is a local file.
type Source struct {
	path string
}

// New returns a Source for path. Relative paths are resolved against the
// working directory.
func New(path string) (*Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Source{path: abs}, nil
}

// Factory adapts New to a downloader.SourceFactory.
func Factory(ref string) (downloader.Source, error) {
	return New(ref)
}

// Register binds the file kind in r.
func Register(r *downloader.Registry) {
	r.Register(Kind, Factory)
}

// Probe stats the file. Raw ".pcm" and ".raw" files are taken as PCM in the
// output format and their duration is derived from the size. Named pipes
// are continuous.
func (s *Source) Probe(ctx context.Context) (downloader.SourceInfo, error) {
	if err := ctx.Err(); err != nil {
		return downloader.SourceInfo{}, err
	}

	st, err := os.Stat(s.path)
	if err != nil {
		return downloader.SourceInfo{}, err
	}
	if st.IsDir() {
		return downloader.SourceInfo{}, fmt.Errorf("%s is a directory", s.path)
	}

	ext := strings.ToLower(filepath.Ext(s.path))
	info := downloader.SourceInfo{
		Continuous: st.Mode()&os.ModeNamedPipe != 0,
		SizeBytes:  st.Size(),
		Title:      strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path)),
		Link:       "file://" + filepath.ToSlash(s.path),
	}
	if ext == ".pcm" || ext == ".raw" {
		info.PCM = true
		info.Duration = st.Size() / downloader.BytesPerSecond
	}
	return info, nil
}

func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(s.path)
}

var _ downloader.Source = (*Source)(nil)
