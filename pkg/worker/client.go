package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/dittocache/pkg/cachemanager"
	"github.com/marmos91/dittocache/pkg/metadata"
	"github.com/marmos91/dittocache/pkg/rpc"
)

// Client calls a worker. It implements metadata.Store, so a remote worker
// can stand in for a local store.
type Client struct {
	req *rpc.Requester
}

var _ metadata.Store = (*Client)(nil)

// NewClient returns a client that has not connected yet. Calls made before
// Start and the first successful connection fail with rpc.ErrNotReady.
func NewClient(config rpc.RequesterConfig) *Client {
	return &Client{req: rpc.NewRequester(config)}
}

// Dial connects to the worker at config.Address and waits until it accepts
// calls.
func Dial(ctx context.Context, config rpc.RequesterConfig) (*Client, error) {
	c := NewClient(config)
	c.Start()
	if err := c.req.WaitReady(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to connect to worker at %s: %w", config.Address, err)
	}
	return c, nil
}

// Start begins connecting in the background.
func (c *Client) Start() { c.req.Start() }

// State returns the connection state.
func (c *Client) State() rpc.State { return c.req.State() }

// Close rejects pending calls and disconnects.
func (c *Client) Close() error { return c.req.Close() }

func (c *Client) call(ctx context.Context, selector uint32, args ...rpc.Value) (rpc.Value, error) {
	v, err := c.req.Call(ctx, selector, args...)
	if err != nil {
		return rpc.Value{}, remoteError(err)
	}
	return v, nil
}

func (c *Client) callVoid(ctx context.Context, selector uint32, args ...rpc.Value) error {
	_, err := c.call(ctx, selector, args...)
	return err
}

var storeCodes = []metadata.ErrorCode{metadata.ErrNotFound, metadata.ErrInvalidArgument, metadata.ErrIOError}

// remoteError restores the error types callers test for from the text of a
// failed response.
func remoteError(err error) error {
	var remote *rpc.RemoteError
	if !errors.As(err, &remote) {
		return err
	}
	msg := remote.Message

	for _, code := range storeCodes {
		prefix := code.String() + ": "
		if strings.HasPrefix(msg, prefix) {
			return &metadata.StoreError{Code: code, Message: strings.TrimPrefix(msg, prefix)}
		}
	}
	if rest, ok := strings.CutPrefix(msg, cachemanager.ErrNotFound.Error()); ok {
		return fmt.Errorf("%w%s", cachemanager.ErrNotFound, rest)
	}
	return err
}

// ============================================================================
// Cache manager
// ============================================================================

// Ping checks that the worker answers.
func (c *Client) Ping(ctx context.Context) error {
	v, err := c.call(ctx, SelectorPing)
	if err != nil {
		return err
	}
	if s, _ := v.AsString(); s != "pong" {
		return fmt.Errorf("unexpected ping reply %s", v)
	}
	return nil
}

// QueueSource asks the worker to track and download id.
func (c *Client) QueueSource(ctx context.Context, id string) error {
	return c.callVoid(ctx, SelectorQueueSource, rpc.String(id))
}

// GetCacheLocation returns the cache directory of id once it is streamable.
// The worker keeps a delete lock until ReleaseDeleteLock.
func (c *Client) GetCacheLocation(ctx context.Context, id string) (string, error) {
	v, err := c.call(ctx, SelectorGetCacheLocation, rpc.String(id))
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func (c *Client) ReleaseDeleteLock(ctx context.Context, id string) error {
	return c.callVoid(ctx, SelectorReleaseDeleteLock, rpc.String(id))
}

func (c *Client) CacheStats(ctx context.Context) (*Stats, error) {
	v, err := c.call(ctx, SelectorCacheStats)
	if err != nil {
		return nil, err
	}
	var stats Stats
	if err := decode(v, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Purge evicts every unlocked cache and returns the bytes freed.
func (c *Client) Purge(ctx context.Context) (int64, error) {
	v, err := c.call(ctx, SelectorPurge)
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

// ============================================================================
// metadata.Store
// ============================================================================

func (c *Client) AddSong(ctx context.Context, id, location string) error {
	return c.callVoid(ctx, SelectorAddSong, rpc.String(id), rpc.String(location))
}

func (c *Client) CacheSong(ctx context.Context, id string) error {
	return c.callVoid(ctx, SelectorCacheSong, rpc.String(id))
}

func (c *Client) UncacheSong(ctx context.Context, id string) error {
	return c.callVoid(ctx, SelectorUncacheSong, rpc.String(id))
}

func (c *Client) SetStartChunk(ctx context.Context, id string, chunk int64) error {
	return c.callVoid(ctx, SelectorSetStartChunk, rpc.String(id), rpc.Int(chunk))
}

func (c *Client) SetEndChunk(ctx context.Context, id string, chunk int64) error {
	return c.callVoid(ctx, SelectorSetEndChunk, rpc.String(id), rpc.Int(chunk))
}

func (c *Client) SetSizeBytes(ctx context.Context, id string, size int64) error {
	return c.callVoid(ctx, SelectorSetSizeBytes, rpc.String(id), rpc.Int(size))
}

func (c *Client) IncrementPlaybacks(ctx context.Context, id string) error {
	return c.callVoid(ctx, SelectorIncrementPlaybacks, rpc.String(id))
}

func (c *Client) SetLink(ctx context.Context, id, link string) error {
	return c.callVoid(ctx, SelectorSetLink, rpc.String(id), rpc.String(link))
}

func (c *Client) SetThumbnailURL(ctx context.Context, id, url string) error {
	return c.callVoid(ctx, SelectorSetThumbnailURL, rpc.String(id), rpc.String(url))
}

func (c *Client) SetTitle(ctx context.Context, id, title string) error {
	return c.callVoid(ctx, SelectorSetTitle, rpc.String(id), rpc.String(title))
}

func (c *Client) SetArtist(ctx context.Context, id, artist string) error {
	return c.callVoid(ctx, SelectorSetArtist, rpc.String(id), rpc.String(artist))
}

func (c *Client) SetDuration(ctx context.Context, id string, seconds int64) error {
	return c.callVoid(ctx, SelectorSetDuration, rpc.String(id), rpc.Int(seconds))
}

func (c *Client) AddLock(ctx context.Context, id string) (int64, error) {
	v, err := c.call(ctx, SelectorAddLock, rpc.String(id))
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

func (c *Client) RemoveLock(ctx context.Context, lockID int64) error {
	return c.callVoid(ctx, SelectorRemoveLock, rpc.Int(lockID))
}

func (c *Client) IsLocked(ctx context.Context, id string) (bool, error) {
	v, err := c.call(ctx, SelectorIsLocked, rpc.String(id))
	if err != nil {
		return false, err
	}
	return v.AsBool()
}

func (c *Client) GetCacheInfo(ctx context.Context, id string) (*metadata.CacheInfo, error) {
	v, err := c.call(ctx, SelectorGetCacheInfo, rpc.String(id))
	if err != nil {
		return nil, err
	}
	var info metadata.CacheInfo
	if err := decode(v, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) GetSongInfo(ctx context.Context, id string) (*metadata.SongInfo, error) {
	v, err := c.call(ctx, SelectorGetSongInfo, rpc.String(id))
	if err != nil {
		return nil, err
	}
	var song metadata.SongInfo
	if err := decode(v, &song); err != nil {
		return nil, err
	}
	return &song, nil
}

func (c *Client) ListCacheInfo(ctx context.Context) ([]*metadata.CacheInfo, error) {
	v, err := c.call(ctx, SelectorListCacheInfo)
	if err != nil {
		return nil, err
	}
	var list cacheInfoList
	if err := decode(v, &list); err != nil {
		return nil, err
	}
	out := make([]*metadata.CacheInfo, len(list.Entries))
	for i := range list.Entries {
		out[i] = &list.Entries[i]
	}
	return out, nil
}

// BestToRemove returns nil when the worker has no candidate.
func (c *Client) BestToRemove(ctx context.Context) (*metadata.CacheInfo, error) {
	v, err := c.call(ctx, SelectorBestToRemove)
	if err != nil {
		return nil, err
	}
	if v.IsVoid() {
		return nil, nil
	}
	var info metadata.CacheInfo
	if err := decode(v, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Healthcheck pings the worker.
func (c *Client) Healthcheck(ctx context.Context) error {
	return c.Ping(ctx)
}
