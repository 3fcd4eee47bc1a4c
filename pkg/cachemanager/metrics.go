package cachemanager

import "time"

// Metrics receives cache manager measurements. A nil Metrics disables
// reporting.
type Metrics interface {
	// RecordRequest counts a QueueSource or GetCacheLocation outcome.
	RecordRequest(result string)

	// RecordEviction counts a delete attempt made while freeing space.
	RecordEviction(result string)

	// ObserveDownload records a finished transfer.
	ObserveDownload(result string, duration time.Duration)

	// SetUsage publishes the size and population of the cache.
	SetUsage(totalBytes, maxBytes int64, tracked, queued int)
}

// Request results.
const (
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultServed   = "served"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Eviction results.
const (
	EvictionDeleted = "deleted"
	EvictionBusy    = "busy"
	EvictionError   = "error"
)

// Download results.
const (
	DownloadSuccess = "success"
	DownloadFailure = "failure"
	DownloadSkipped = "skipped"
)
