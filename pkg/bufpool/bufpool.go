// Package bufpool recycles the byte buffers of the two hot paths of a
// worker: RPC frames and PCM chunk files.
//
// Buffers come in three size classes. A request larger than the largest
// class is served by a plain allocation and is not recycled.
package bufpool

import (
	"sync"
)

const (
	// DefaultSmallSize fits a typical call or response frame.
	DefaultSmallSize = 4 << 10

	// DefaultMediumSize fits list replies such as ListCacheInfo.
	DefaultMediumSize = 64 << 10

	// DefaultLargeSize fits one PCM chunk (10 s of 48 kHz stereo s16le).
	DefaultLargeSize = 2 << 20
)

// Pool is a set of size-classed sync.Pools. Safe for concurrent use.
type Pool struct {
	classes [3]class
}

type class struct {
	size int
	pool sync.Pool
}

// Config sets the class sizes. Zero values select the defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// NewPool returns a pool with the class sizes of cfg.
func NewPool(cfg Config) *Pool {
	sizes := [3]int{cfg.SmallSize, cfg.MediumSize, cfg.LargeSize}
	defaults := [3]int{DefaultSmallSize, DefaultMediumSize, DefaultLargeSize}

	p := &Pool{}
	for i := range p.classes {
		size := sizes[i]
		if size <= 0 {
			size = defaults[i]
		}
		c := &p.classes[i]
		c.size = size
		c.pool.New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// Get returns a buffer of length size. Its capacity is the class size, so
// callers may grow it up to cap without reallocating.
func (p *Pool) Get(size int) []byte {
	for i := range p.classes {
		c := &p.classes[i]
		if size <= c.size {
			buf := *c.pool.Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its class. Buffers whose capacity matches no class are
// dropped. buf must not be used after Put.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	for i := range p.classes {
		c := &p.classes[i]
		if cap(buf) == c.size {
			full := buf[:c.size]
			c.pool.Put(&full)
			return
		}
	}
}

var global = NewPool(Config{})

// Get returns a buffer from the process-wide pool.
func Get(size int) []byte { return global.Get(size) }

// Put returns buf to the process-wide pool.
func Put(buf []byte) { global.Put(buf) }
