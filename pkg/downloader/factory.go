package downloader

import (
	"context"
	"path/filepath"
)

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	// Root is the parent of all cache directories.
	Root string

	// Transcoder converts non-PCM sources. Default: FFmpegTranscoder.
	Transcoder Transcoder

	// ChunkSize and StreamableChunks override the package defaults.
	ChunkSize        int
	StreamableChunks int
}

// Factory builds Downloaders for content ids.
type Factory struct {
	config   FactoryConfig
	registry *Registry
	base     context.Context
}

// NewFactory returns a Factory resolving sources through registry. Transfers
// started by its Downloaders run under ctx.
func NewFactory(ctx context.Context, config FactoryConfig, registry *Registry) *Factory {
	if config.Transcoder == nil {
		config.Transcoder = &FFmpegTranscoder{}
	}
	return &Factory{config: config, registry: registry, base: ctx}
}

// Root returns the cache root directory.
func (f *Factory) Root() string { return f.config.Root }

// CacheDir returns the cache directory of id.
func (f *Factory) CacheDir(id string) (string, error) {
	name, err := CacheDirName(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.config.Root, name), nil
}

// New returns the Downloader of id. It does not touch the filesystem.
func (f *Factory) New(id string) (*Transfer, error) {
	dir, err := f.CacheDir(id)
	if err != nil {
		return nil, err
	}
	kind, src, err := f.registry.Source(id)
	if err != nil {
		return nil, err
	}
	return NewTransfer(id, kind, dir, src, TransferOptions{
		Transcoder:       f.config.Transcoder,
		ChunkSize:        f.config.ChunkSize,
		StreamableChunks: f.config.StreamableChunks,
		Context:          f.base,
	}), nil
}

// Downloader is New typed as the Downloader interface, for use as a cache
// manager factory.
func (f *Factory) Downloader(id string) (Downloader, error) {
	t, err := f.New(id)
	if err != nil {
		return nil, err
	}
	return t, nil
}
