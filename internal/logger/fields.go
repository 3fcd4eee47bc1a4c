package logger

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// Standard field keys for structured logging. Use them consistently so that
// log aggregation can join lines from the worker, the RPC layer and the
// transfer engine.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// RPC
	// ========================================================================
	KeyComponent = "component" // Subsystem name
	KeyProcedure = "procedure" // Selector name
	KeySelector  = "selector"  // Numeric selector
	KeyCallUID   = "call_uid"  // Envelope uid
	KeyAddress   = "address"   // Socket path
	KeyState     = "state"     // Requester connection state
	KeyAttempt   = "attempt"   // Reconnect attempt number
	KeyPending   = "pending"   // Queued calls

	// ========================================================================
	// Cache & Transfer
	// ========================================================================
	KeyContentID  = "content_id"  // Content id of the cached source
	KeyKind       = "kind"        // Source kind prefix (file, http, s3, ...)
	KeyPath       = "path"        // Cache directory or chunk file
	KeyChunk      = "chunk"       // Chunk index
	KeyChunks     = "chunks"      // Chunk count
	KeySize       = "size"        // Size in bytes
	KeyHumanSize  = "human_size"  // Size rendered for humans
	KeyRequired   = "required"    // Bytes requested from FreeSpace
	KeyCacheSize  = "cache_size"  // Current total cached bytes
	KeyCacheMax   = "cache_max"   // Configured maximum
	KeyPlayCount  = "play_count"  // In-memory play count
	KeyLocks      = "locks"       // Delete lock refcount
	KeyEvicted    = "evicted"     // Entries evicted
	KeyQueueDepth = "queue_depth" // Pending downloads

	// ========================================================================
	// Metadata Store
	// ========================================================================
	KeyStore  = "store"   // Backend name: sqlite, postgres, badger
	KeyLockID = "lock_id" // Durable lock id

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// ContentID returns a slog.Attr for a content id
func ContentID(id string) slog.Attr {
	return slog.String(KeyContentID, id)
}

// Size returns the raw and human readable forms of a byte count.
func Size(n int64) slog.Attr {
	if n < 0 {
		n = 0
	}
	return slog.Group("",
		slog.Int64(KeySize, n),
		slog.String(KeyHumanSize, humanize.IBytes(uint64(n))),
	)
}

// Err returns a slog.Attr for an error. A nil error yields an empty attr,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr with the elapsed milliseconds since start.
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}
