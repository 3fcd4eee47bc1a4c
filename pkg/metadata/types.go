package metadata

// Sentinel values stored until a field has been populated.
const (
	// Unknown is the placeholder for text fields of a song that were never set.
	Unknown = "Unknown"

	// NoChunk marks chunk bounds of an entry that holds no cached data.
	NoChunk int64 = -1

	// UnknownDuration marks a song whose duration was never reported.
	UnknownDuration int64 = -1
)

// CacheInfo is the durable cache record of one content id.
//
// Invariant: when Cached is false, SizeBytes is 0 and both chunk bounds are
// NoChunk. Rows are never deleted; uncaching resets them instead.
type CacheInfo struct {
	ContentID     string
	Cached        bool
	CacheLocation string
	StartChunk    int64
	EndChunk      int64
	SizeBytes     int64
	Playbacks     int64
}

// NewCacheInfo returns the record created by AddSong.
func NewCacheInfo(contentID, location string) *CacheInfo {
	return &CacheInfo{
		ContentID:     contentID,
		CacheLocation: location,
		StartChunk:    NoChunk,
		EndChunk:      NoChunk,
	}
}

// SizeOverPlays is the eviction score of an entry: cached bytes per
// playback. Entries never played score 0.
func (c *CacheInfo) SizeOverPlays() float64 {
	if c.Playbacks <= 0 {
		return 0
	}
	return float64(c.SizeBytes) / float64(c.Playbacks)
}

// SongInfo is the descriptive metadata of one content id. Its lifecycle is
// independent of the cache record.
type SongInfo struct {
	ContentID    string
	Link         string
	ThumbnailURL string
	Title        string
	Artist       string
	Duration     int64 // seconds
}

// NewSongInfo returns the record created by AddSong.
func NewSongInfo(contentID string) *SongInfo {
	return &SongInfo{
		ContentID:    contentID,
		Link:         Unknown,
		ThumbnailURL: Unknown,
		Title:        Unknown,
		Artist:       Unknown,
		Duration:     UnknownDuration,
	}
}

// SelectBestToRemove returns the entry with the highest SizeOverPlays among
// cached, unlocked entries. entries must be in insertion order; the first of
// equally scored entries wins. Entries scoring 0 are never selected, so the
// result is nil when nothing scores above 0.
func SelectBestToRemove(entries []*CacheInfo, locked func(contentID string) bool) *CacheInfo {
	var best *CacheInfo
	bestScore := 0.0
	for _, e := range entries {
		if !e.Cached {
			continue
		}
		score := e.SizeOverPlays()
		if score <= bestScore {
			continue
		}
		if locked != nil && locked(e.ContentID) {
			continue
		}
		best, bestScore = e, score
	}
	return best
}
