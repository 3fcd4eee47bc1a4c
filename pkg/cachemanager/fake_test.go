package cachemanager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/marmos91/dittocache/pkg/downloader"
)

// fakeDownloader is a Downloader whose transfer the test completes by hand.
type fakeDownloader struct {
	id  string
	dir string

	mu          sync.Mutex
	estimate    int64
	beginErr    error
	info        downloader.SourceInfo
	size        int64
	chunks      int
	downloaded  bool
	downloading bool
	streamable  bool
	locks       int
	begins      int
	deletes     int
	adopted     bool
	done        chan struct{}
	doneErr     error
	listeners   []downloader.Listener
}

func (d *fakeDownloader) ContentID() string { return d.id }

func (d *fakeDownloader) Dir() string { return d.dir }

func (d *fakeDownloader) Downloaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloaded
}

func (d *fakeDownloader) Downloading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloading
}

func (d *fakeDownloader) CachedSizeBytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

func (d *fakeDownloader) Chunks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chunks
}

func (d *fakeDownloader) LockCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locks
}

func (d *fakeDownloader) Info() (downloader.SourceInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info, true
}

func (d *fakeDownloader) EstimateCacheSize(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.estimate, nil
}

func (d *fakeDownloader) BeginDownload(ctx context.Context) error {
	d.mu.Lock()
	if d.downloading || d.downloaded {
		d.mu.Unlock()
		return nil
	}
	if d.beginErr != nil {
		d.mu.Unlock()
		return d.beginErr
	}
	d.downloading = true
	d.begins++
	d.done = make(chan struct{})
	listeners := append([]downloader.Listener(nil), d.listeners...)
	d.mu.Unlock()

	for _, l := range listeners {
		l.OnStart(d)
	}
	return nil
}

// complete ends the running transfer with err.
func (d *fakeDownloader) complete(size int64, chunks int, err error) {
	d.mu.Lock()
	d.downloading = false
	d.doneErr = err
	if err != nil {
		// Later attempts fail the same way.
		d.beginErr = err
	} else {
		d.downloaded = true
		d.streamable = true
		d.size = size
		d.chunks = chunks
	}
	done := d.done
	listeners := append([]downloader.Listener(nil), d.listeners...)
	d.mu.Unlock()

	close(done)
	for _, l := range listeners {
		if err == nil {
			l.OnStreamable(d)
		}
		l.OnFinish(d, err)
	}
}

func (d *fakeDownloader) GetCacheLocation(ctx context.Context) (string, error) {
	d.mu.Lock()
	if d.streamable {
		d.locks++
		d.mu.Unlock()
		return d.dir, nil
	}
	d.mu.Unlock()

	if err := d.BeginDownload(ctx); err != nil {
		return "", err
	}

	d.mu.Lock()
	done := d.done
	d.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doneErr != nil {
		return "", d.doneErr
	}
	d.locks++
	return d.dir, nil
}

func (d *fakeDownloader) LockIfStreamable() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.streamable {
		return "", false
	}
	d.locks++
	return d.dir, true
}

func (d *fakeDownloader) ReleaseDeleteLock() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locks > 0 {
		d.locks--
	}
}

func (d *fakeDownloader) DeleteCache(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.downloading || d.locks != 0 {
		return downloader.ErrBusy
	}
	if err := os.RemoveAll(d.dir); err != nil {
		return err
	}
	d.deletes++
	d.downloaded = false
	d.streamable = false
	d.size = 0
	d.chunks = 0
	return nil
}

func (d *fakeDownloader) Wait(ctx context.Context) error { return nil }

func (d *fakeDownloader) Subscribe(l downloader.Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
	return func() {}
}

func (d *fakeDownloader) Adopt(size int64, chunks int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adopted = true
	d.downloaded = true
	d.streamable = true
	d.size = size
	d.chunks = chunks
}

func (d *fakeDownloader) Begins() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.begins
}

func (d *fakeDownloader) Deletes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deletes
}

// clearBeginErr lets the next attempt start after a failure.
func (d *fakeDownloader) clearBeginErr() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beginErr = nil
}

func (d *fakeDownloader) setLocks(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locks = n
}

var _ downloader.Downloader = (*fakeDownloader)(nil)

// fakeFactory hands out one fakeDownloader per New call and remembers the
// latest one of each id.
type fakeFactory struct {
	root string

	mu       sync.Mutex
	created  map[string]*fakeDownloader
	calls    map[string]int
	estimate int64
	prepare  func(d *fakeDownloader)
}

func newFakeFactory(t *testing.T) *fakeFactory {
	return &fakeFactory{
		root:     t.TempDir(),
		created:  make(map[string]*fakeDownloader),
		calls:    make(map[string]int),
		estimate: 10,
	}
}

func (f *fakeFactory) New(id string) (downloader.Downloader, error) {
	name, err := downloader.CacheDirName(id)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	d := &fakeDownloader{id: id, dir: filepath.Join(f.root, name), estimate: f.estimate}
	if f.prepare != nil {
		f.prepare(d)
	}
	f.created[id] = d
	f.calls[id]++
	return d, nil
}

func (f *fakeFactory) get(id string) *fakeDownloader {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[id]
}

func (f *fakeFactory) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}
