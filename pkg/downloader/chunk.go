package downloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/marmos91/dittocache/pkg/bufpool"
)

// ChunkFileName returns the file name of chunk index.
func ChunkFileName(index int) string {
	return strconv.Itoa(index) + ".pcm"
}

// ChunkWriter splits a PCM stream into numbered chunk files inside dir.
// A chunk file appears atomically once it is complete, so readers never
// observe a partial chunk. Not safe for concurrent use.
type ChunkWriter struct {
	dir       string
	chunkSize int
	buf       []byte
	next      int
	written   int64
	onChunk   func(index int, size int)
	closed    bool
}

// NewChunkWriter returns a writer that stores chunkSize-byte chunks in dir
// and calls onChunk after each chunk file is in place.
func NewChunkWriter(dir string, chunkSize int, onChunk func(index int, size int)) *ChunkWriter {
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}
	return &ChunkWriter{
		dir:       dir,
		chunkSize: chunkSize,
		buf:       bufpool.Get(chunkSize)[:0],
		onChunk:   onChunk,
	}
}

// Write buffers p and flushes every completed chunk.
func (w *ChunkWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, os.ErrClosed
	}

	total := len(p)
	for len(p) > 0 {
		n := min(w.chunkSize-len(w.buf), len(p))
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]

		if len(w.buf) == w.chunkSize {
			if err := w.flush(); err != nil {
				return total - len(p), err
			}
		}
	}
	return total, nil
}

// Close flushes the final partial chunk, if any, and releases the buffer.
func (w *ChunkWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer func() {
		bufpool.Put(w.buf)
		w.buf = nil
	}()
	if len(w.buf) == 0 {
		return nil
	}
	return w.flush()
}

// Chunks is the number of chunk files written so far.
func (w *ChunkWriter) Chunks() int { return w.next }

// Written is the number of bytes in chunk files so far.
func (w *ChunkWriter) Written() int64 { return w.written }

func (w *ChunkWriter) flush() error {
	index := w.next
	final := filepath.Join(w.dir, ChunkFileName(index))
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, w.buf, 0644); err != nil {
		return fmt.Errorf("failed to write chunk %d: %w", index, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to publish chunk %d: %w", index, err)
	}

	size := len(w.buf)
	w.next++
	w.written += int64(size)
	w.buf = w.buf[:0]

	if w.onChunk != nil {
		w.onChunk(index, size)
	}
	return nil
}
