// Package sql implements metadata.Store on a relational database through
// the storage adapter (SQLite or PostgreSQL).
package sql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/metadata"
	"github.com/marmos91/dittocache/pkg/storage"
)

// Store implements metadata.Store on a storage.DB.
type Store struct {
	db *storage.DB
}

// New migrates the schema and returns a Store. The Store takes ownership of
// db and closes it on Close.
func New(db *storage.DB) (*Store, error) {
	if err := db.Migrate(allModels()...); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Open opens the database described by config and returns a Store on it.
func Open(ctx context.Context, config storage.Config) (*Store, error) {
	db, err := storage.Open(ctx, config)
	if err != nil {
		return nil, err
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("Metadata store ready", logger.KeyStore, string(db.Type()))
	return s, nil
}

// ============================================================================
// Songs
// ============================================================================

func (s *Store) AddSong(ctx context.Context, id, location string) error {
	if id == "" {
		return metadata.NewInvalidArgumentError("content id is required")
	}

	info := metadata.NewCacheInfo(id, location)
	song := metadata.NewSongInfo(id)

	err := s.db.Exec(ctx, func(tx *gorm.DB) error {
		ci := cacheInfoRow{
			ContentID:     info.ContentID,
			CacheLocation: info.CacheLocation,
			StartChunk:    info.StartChunk,
			EndChunk:      info.EndChunk,
		}
		onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "content_id"}}, DoNothing: true}
		if err := tx.Clauses(onConflict).Create(&ci).Error; err != nil {
			return err
		}
		si := songInfoRow{
			ContentID:    song.ContentID,
			Link:         song.Link,
			ThumbnailURL: song.ThumbnailURL,
			Title:        song.Title,
			Artist:       song.Artist,
			Duration:     song.Duration,
		}
		return tx.Clauses(onConflict).Create(&si).Error
	})
	if err != nil {
		return metadata.NewIOError("add song", id, err)
	}
	return nil
}

func (s *Store) CacheSong(ctx context.Context, id string) error {
	return s.updateCache(ctx, "cache song", id, map[string]any{"cached": true})
}

func (s *Store) UncacheSong(ctx context.Context, id string) error {
	return s.updateCache(ctx, "uncache song", id, map[string]any{
		"cached":      false,
		"start_chunk": metadata.NoChunk,
		"end_chunk":   metadata.NoChunk,
		"size_bytes":  0,
	})
}

func (s *Store) SetStartChunk(ctx context.Context, id string, chunk int64) error {
	return s.updateCache(ctx, "set start chunk", id, map[string]any{"start_chunk": chunk})
}

func (s *Store) SetEndChunk(ctx context.Context, id string, chunk int64) error {
	return s.updateCache(ctx, "set end chunk", id, map[string]any{"end_chunk": chunk})
}

func (s *Store) SetSizeBytes(ctx context.Context, id string, size int64) error {
	if size < 0 {
		return metadata.NewInvalidArgumentError("size must not be negative")
	}
	return s.updateCache(ctx, "set size", id, map[string]any{"size_bytes": size})
}

func (s *Store) IncrementPlaybacks(ctx context.Context, id string) error {
	return s.updateCache(ctx, "increment playbacks", id, map[string]any{
		"playbacks": gorm.Expr("playbacks + ?", 1),
	})
}

func (s *Store) SetLink(ctx context.Context, id, link string) error {
	return s.updateSong(ctx, "set link", id, map[string]any{"link": link})
}

func (s *Store) SetThumbnailURL(ctx context.Context, id, url string) error {
	return s.updateSong(ctx, "set thumbnail", id, map[string]any{"thumbnail_url": url})
}

func (s *Store) SetTitle(ctx context.Context, id, title string) error {
	return s.updateSong(ctx, "set title", id, map[string]any{"title": title})
}

func (s *Store) SetArtist(ctx context.Context, id, artist string) error {
	return s.updateSong(ctx, "set artist", id, map[string]any{"artist": artist})
}

func (s *Store) SetDuration(ctx context.Context, id string, seconds int64) error {
	return s.updateSong(ctx, "set duration", id, map[string]any{"duration": seconds})
}

func (s *Store) updateCache(ctx context.Context, op, id string, updates map[string]any) error {
	return s.update(ctx, op, id, func(tx *gorm.DB) error {
		return storage.UpdateByField[cacheInfoRow](tx, ctx, "content_id", id, updates)
	})
}

func (s *Store) updateSong(ctx context.Context, op, id string, updates map[string]any) error {
	return s.update(ctx, op, id, func(tx *gorm.DB) error {
		return storage.UpdateByField[songInfoRow](tx, ctx, "content_id", id, updates)
	})
}

func (s *Store) update(ctx context.Context, op, id string, fn func(tx *gorm.DB) error) error {
	err := s.db.Exec(ctx, fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNoRows):
		return metadata.NewNotFoundError(id)
	default:
		return metadata.NewIOError(op, id, err)
	}
}

// ============================================================================
// Locks
// ============================================================================

func (s *Store) AddLock(ctx context.Context, id string) (int64, error) {
	var lockID int64
	err := s.db.Exec(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&cacheInfoRow{}).Where("content_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return metadata.NewNotFoundError(id)
		}
		row := lockRow{ContentID: id}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		lockID = row.LockID
		return nil
	})
	if err != nil {
		if metadata.IsNotFoundError(err) {
			return 0, err
		}
		return 0, metadata.NewIOError("add lock", id, err)
	}
	logger.Debug("Lock added", logger.KeyContentID, id, logger.KeyLockID, lockID)
	return lockID, nil
}

func (s *Store) RemoveLock(ctx context.Context, lockID int64) error {
	err := s.db.Exec(ctx, func(tx *gorm.DB) error {
		return tx.Where("lock_id = ?", lockID).Delete(&lockRow{}).Error
	})
	if err != nil {
		return metadata.NewIOError(fmt.Sprintf("remove lock %d", lockID), "", err)
	}
	return nil
}

func (s *Store) IsLocked(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.Query(ctx).Model(&lockRow{}).Where("content_id = ?", id).Count(&count).Error; err != nil {
		return false, metadata.NewIOError("is locked", id, err)
	}
	return count > 0, nil
}

// ============================================================================
// Readers
// ============================================================================

func (s *Store) GetCacheInfo(ctx context.Context, id string) (*metadata.CacheInfo, error) {
	row, err := storage.GetByField[cacheInfoRow](s.db.Query(ctx), ctx, "content_id", id, metadata.NewNotFoundError(id))
	if err != nil {
		if metadata.IsNotFoundError(err) {
			return nil, err
		}
		return nil, metadata.NewIOError("get cache info", id, err)
	}
	return row.toInfo(), nil
}

func (s *Store) GetSongInfo(ctx context.Context, id string) (*metadata.SongInfo, error) {
	row, err := storage.GetByField[songInfoRow](s.db.Query(ctx), ctx, "content_id", id, metadata.NewNotFoundError(id))
	if err != nil {
		if metadata.IsNotFoundError(err) {
			return nil, err
		}
		return nil, metadata.NewIOError("get song info", id, err)
	}
	return row.toInfo(), nil
}

func (s *Store) ListCacheInfo(ctx context.Context) ([]*metadata.CacheInfo, error) {
	var rows []cacheInfoRow
	if err := s.db.Query(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, metadata.NewIOError("list cache info", "", err)
	}
	infos := make([]*metadata.CacheInfo, 0, len(rows))
	for i := range rows {
		infos = append(infos, rows[i].toInfo())
	}
	return infos, nil
}

// BestToRemove ranks in SQL. The DOUBLE PRECISION cast keeps the division
// exact enough on PostgreSQL and maps to REAL affinity on SQLite.
func (s *Store) BestToRemove(ctx context.Context) (*metadata.CacheInfo, error) {
	var row cacheInfoRow
	err := s.db.Query(ctx).
		Where("cached = ? AND playbacks > 0 AND size_bytes > 0", true).
		Where("NOT EXISTS (SELECT 1 FROM cache_locks WHERE cache_locks.content_id = cache_info.content_id)").
		Order("CAST(size_bytes AS DOUBLE PRECISION) / playbacks DESC").
		Order("id ASC").
		First(&row).Error
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, metadata.NewIOError("best to remove", "", err)
	}
	return row.toInfo(), nil
}

// ============================================================================
// Lifecycle
// ============================================================================

func (s *Store) Healthcheck(ctx context.Context) error {
	return s.db.Healthcheck(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ metadata.Store = (*Store)(nil)
