package downloader

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
)

// fakeSource serves its first Open from a pipe the test writes to. Later
// Opens fail with errReopened.
type fakeSource struct {
	info     SourceInfo
	probeErr error

	mu     sync.Mutex
	opens  int
	probes int
	pr     *io.PipeReader
	pw     *io.PipeWriter
}

var errReopened = errors.New("source reopened")

func newFakeSource(info SourceInfo) *fakeSource {
	pr, pw := io.Pipe()
	return &fakeSource{info: info, pr: pr, pw: pw}
}

func (s *fakeSource) Probe(ctx context.Context) (SourceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes++
	if s.probeErr != nil {
		return SourceInfo{}, s.probeErr
	}
	return s.info, nil
}

func (s *fakeSource) Open(ctx context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.opens > 1 {
		return nil, errReopened
	}
	return s.pr, nil
}

func (s *fakeSource) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// feed writes p to the transfer. It blocks until the transfer reads it.
func (s *fakeSource) feed(t *testing.T, p []byte) {
	t.Helper()
	if _, err := s.pw.Write(p); err != nil {
		t.Fatalf("feed: %v", err)
	}
}

func (s *fakeSource) end() { _ = s.pw.Close() }

func (s *fakeSource) fail(err error) { _ = s.pw.CloseWithError(err) }

// eventRecorder collects lifecycle events in arrival order.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (r *eventRecorder) OnStart(Downloader) { r.add("start", nil) }

func (r *eventRecorder) OnStreamable(Downloader) { r.add("streamable", nil) }

func (r *eventRecorder) OnFinish(_ Downloader, err error) { r.add("finish", err) }

func (r *eventRecorder) add(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
	r.errs = append(r.errs, err)
}

func (r *eventRecorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

const testChunk = 4

// newTestTransfer returns a Transfer with 4-byte chunks and a threshold of
// two chunks, copying source bytes unchanged.
func newTestTransfer(t *testing.T, src Source) *Transfer {
	t.Helper()
	return NewTransfer("file$track.flac", "file", t.TempDir()+"/file_track.flac", src, TransferOptions{
		Transcoder:       PassthroughTranscoder{},
		ChunkSize:        testChunk,
		StreamableChunks: 2,
		Context:          context.Background(),
	})
}
