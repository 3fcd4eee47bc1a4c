// Package http fetches content over HTTP(S). Content ids look like
// "http$https://example.com/track.mp3".
package http

import (
	"context"
	"fmt"
	"io"
	"mime"
	nethttp "net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/marmos91/dittocache/pkg/downloader"
)

// Kind is the content id prefix of HTTP sources.
const Kind = "http"

const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "dittocache"
)

// Config configures the HTTP client.
type Config struct {
	// Timeout bounds the probe request. Transfers are not time limited.
	// Default: 15s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// UserAgent is sent with every request.
	// Default: "dittocache"
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

// Client holds the shared resty client of all HTTP sources.
type Client struct {
	config Config
	resty  *resty.Client
}

// NewClient returns a Client. Close releases its idle connections.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	rc := resty.New().
		SetHeader("User-Agent", config.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	return &Client{config: config, resty: rc}
}

// Close releases the client.
func (c *Client) Close() error {
	return c.resty.Close()
}

// Factory builds Sources for references that are absolute http(s) URLs.
func (c *Client) Factory(ref string) (downloader.Source, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("not an http(s) URL: %q", ref)
	}
	return &Source{client: c, url: u}, nil
}

// Register binds the http kind in r.
func (c *Client) Register(r *downloader.Registry) {
	r.Register(Kind, c.Factory)
}

// Source is one URL.
type Source struct {
	client *Client
	url    *url.URL
}

// playlistTypes are HLS playlist media types, which describe live or
// segmented streams.
var playlistTypes = map[string]bool{
	"application/vnd.apple.mpegurl": true,
	"application/x-mpegurl":         true,
	"audio/mpegurl":                 true,
	"audio/x-mpegurl":               true,
}

// Probe issues a HEAD request. Servers that reject HEAD yield unknown
// metadata rather than an error.
func (s *Source) Probe(ctx context.Context) (downloader.SourceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.client.config.Timeout)
	defer cancel()

	info := downloader.SourceInfo{
		Link:  s.url.String(),
		Title: titleFromPath(s.url.Path),
	}
	if strings.EqualFold(path.Ext(s.url.Path), ".m3u8") {
		info.Continuous = true
		return info, nil
	}

	resp, err := s.client.resty.R().SetContext(ctx).Head(s.url.String())
	if err != nil {
		return downloader.SourceInfo{}, fmt.Errorf("HEAD %s: %w", s.url.Redacted(), err)
	}

	switch code := resp.StatusCode(); {
	case code == nethttp.StatusMethodNotAllowed || code == nethttp.StatusNotImplemented:
		return info, nil
	case code >= 400:
		return downloader.SourceInfo{}, fmt.Errorf("HEAD %s: %s", s.url.Redacted(), resp.Status())
	}

	header := resp.Header()
	if mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type")); err == nil && playlistTypes[mediaType] {
		info.Continuous = true
	}
	if header.Get("Icy-Metaint") != "" || header.Get("Icy-Name") != "" || header.Get("Icy-Br") != "" {
		info.Continuous = true
		if name := header.Get("Icy-Name"); name != "" {
			info.Title = name
		}
	}
	if n, err := strconv.ParseInt(header.Get("Content-Length"), 10, 64); err == nil && n > 0 {
		info.SizeBytes = n
	}
	if d, err := strconv.ParseFloat(header.Get("X-Content-Duration"), 64); err == nil && d > 0 {
		info.Duration = int64(d + 0.5)
	}
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		info.Title = titleFromPath(params["filename"])
	}
	return info, nil
}

// Open streams the response body. The caller closes it.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.client.resty.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(s.url.String())
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", s.url.Redacted(), err)
	}
	if resp.StatusCode() >= 400 {
		_ = resp.RawResponse.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", s.url.Redacted(), resp.Status())
	}
	return resp.RawResponse.Body, nil
}

func titleFromPath(p string) string {
	base := path.Base(p)
	if base == "/" || base == "." {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

var _ downloader.Source = (*Source)(nil)
