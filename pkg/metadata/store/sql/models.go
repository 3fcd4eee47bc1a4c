package sql

import "github.com/marmos91/dittocache/pkg/metadata"

// cacheInfoRow is the cache_info table. ID only orders rows by insertion.
type cacheInfoRow struct {
	ID            uint64 `gorm:"primaryKey"`
	ContentID     string `gorm:"uniqueIndex;not null;size:512"`
	Cached        bool   `gorm:"not null;default:false"`
	CacheLocation string `gorm:"not null"`
	StartChunk    int64  `gorm:"not null;default:-1"`
	EndChunk      int64  `gorm:"not null;default:-1"`
	SizeBytes     int64  `gorm:"not null;default:0"`
	Playbacks     int64  `gorm:"not null;default:0"`
}

func (cacheInfoRow) TableName() string { return "cache_info" }

func (r *cacheInfoRow) toInfo() *metadata.CacheInfo {
	return &metadata.CacheInfo{
		ContentID:     r.ContentID,
		Cached:        r.Cached,
		CacheLocation: r.CacheLocation,
		StartChunk:    r.StartChunk,
		EndChunk:      r.EndChunk,
		SizeBytes:     r.SizeBytes,
		Playbacks:     r.Playbacks,
	}
}

// songInfoRow is the song_info table.
type songInfoRow struct {
	ContentID    string `gorm:"primaryKey;size:512"`
	Link         string `gorm:"not null"`
	ThumbnailURL string `gorm:"not null"`
	Title        string `gorm:"not null"`
	Artist       string `gorm:"not null"`
	Duration     int64  `gorm:"not null;default:-1"`
}

func (songInfoRow) TableName() string { return "song_info" }

func (r *songInfoRow) toInfo() *metadata.SongInfo {
	return &metadata.SongInfo{
		ContentID:    r.ContentID,
		Link:         r.Link,
		ThumbnailURL: r.ThumbnailURL,
		Title:        r.Title,
		Artist:       r.Artist,
		Duration:     r.Duration,
	}
}

// lockRow is the cache_locks table. LockID is an auto-increment key, which
// both backends allocate monotonically without reuse.
type lockRow struct {
	LockID    int64  `gorm:"primaryKey;autoIncrement"`
	ContentID string `gorm:"index;not null;size:512"`
}

func (lockRow) TableName() string { return "cache_locks" }

func allModels() []any {
	return []any{&cacheInfoRow{}, &songInfoRow{}, &lockRow{}}
}
