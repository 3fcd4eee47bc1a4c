package http

import (
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocache/pkg/downloader"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(Config{Timeout: 2 * time.Second})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestProbe(t *testing.T) {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/songs/kind-of-blue.mp3", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", "4096")
		w.Header().Set("X-Content-Duration", "337.6")
	})
	mux.HandleFunc("/radio", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Icy-Name", "Jazz FM")
		w.Header().Set("Content-Type", "audio/mpeg")
	})
	mux.HandleFunc("/playlist", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	})
	mux.HandleFunc("/download", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="So What.ogg"`)
	})
	mux.HandleFunc("/nohead", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodHead {
			w.WriteHeader(nethttp.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/gone", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t)
	probe := func(t *testing.T, path string) (downloader.SourceInfo, error) {
		t.Helper()
		src, err := c.Factory(srv.URL + path)
		require.NoError(t, err)
		return src.Probe(t.Context())
	}

	t.Run("Metadata", func(t *testing.T) {
		info, err := probe(t, "/songs/kind-of-blue.mp3")
		require.NoError(t, err)
		assert.Equal(t, "kind-of-blue", info.Title)
		assert.EqualValues(t, 4096, info.SizeBytes)
		assert.EqualValues(t, 338, info.Duration)
		assert.False(t, info.Continuous)
		assert.False(t, info.PCM)
	})

	t.Run("IcecastIsContinuous", func(t *testing.T) {
		info, err := probe(t, "/radio")
		require.NoError(t, err)
		assert.True(t, info.Continuous)
		assert.Equal(t, "Jazz FM", info.Title)
	})

	t.Run("PlaylistIsContinuous", func(t *testing.T) {
		info, err := probe(t, "/playlist")
		require.NoError(t, err)
		assert.True(t, info.Continuous)
	})

	t.Run("HLSExtensionSkipsRequest", func(t *testing.T) {
		info, err := probe(t, "/live/index.m3u8")
		require.NoError(t, err)
		assert.True(t, info.Continuous)
	})

	t.Run("ContentDisposition", func(t *testing.T) {
		info, err := probe(t, "/download")
		require.NoError(t, err)
		assert.Equal(t, "So What", info.Title)
	})

	t.Run("HeadNotAllowed", func(t *testing.T) {
		info, err := probe(t, "/nohead")
		require.NoError(t, err)
		assert.Zero(t, info.Duration)
		assert.Equal(t, "nohead", info.Title)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := probe(t, "/gone")
		assert.ErrorContains(t, err, "404")
	})
}

func TestOpen(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path == "/missing.mp3" {
			nethttp.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("encoded-audio"))
	}))
	defer srv.Close()

	c := newTestClient(t)
	r := downloader.NewRegistry()
	c.Register(r)

	_, src, err := r.Source(Kind + downloader.Separator + srv.URL + "/a.mp3")
	require.NoError(t, err)
	body, err := src.Open(t.Context())
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "encoded-audio", string(data))

	_, src, err = r.Source(Kind + downloader.Separator + srv.URL + "/missing.mp3")
	require.NoError(t, err)
	_, err = src.Open(t.Context())
	assert.ErrorContains(t, err, "404")
}

func TestFactoryRejectsNonHTTP(t *testing.T) {
	c := newTestClient(t)
	for _, ref := range []string{"ftp://host/a.mp3", "/local/path", "https://"} {
		_, err := c.Factory(ref)
		assert.Error(t, err, ref)
	}
}
