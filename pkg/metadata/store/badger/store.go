// Package badger implements metadata.Store on an embedded BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/metadata"
)

const (
	sequenceBandwidth = 64
	maxConflictRetry  = 16
)

// Config configures the BadgerDB store.
type Config struct {
	// Path is the database directory. Empty keeps everything in memory.
	Path string `mapstructure:"path" yaml:"path"`
}

// Store implements metadata.Store on BadgerDB.
type Store struct {
	db       *badgerdb.DB
	cacheSeq *badgerdb.Sequence
	lockSeq  *badgerdb.Sequence
}

// Open opens or creates the database described by config.
func Open(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badgerdb.DefaultOptions(config.Path).WithLogger(nil)
	if config.Path == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory: %w", err)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	cacheSeq, err := db.GetSequence([]byte(seqCache), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to lease cache sequence: %w", err)
	}
	lockSeq, err := db.GetSequence([]byte(seqLock), sequenceBandwidth)
	if err != nil {
		_ = cacheSeq.Release()
		_ = db.Close()
		return nil, fmt.Errorf("failed to lease lock sequence: %w", err)
	}

	logger.Info("Metadata store ready", logger.KeyStore, "badger", logger.KeyPath, config.Path)
	return &Store{db: db, cacheSeq: cacheSeq, lockSeq: lockSeq}, nil
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent writers.
func (s *Store) update(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) || attempt >= maxConflictRetry {
			return err
		}
	}
}

func (s *Store) view(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// wrap converts a backend error into a StoreError, passing StoreErrors
// through untouched.
func wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *metadata.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return metadata.NewIOError(op, id, err)
}

// ============================================================================
// Songs
// ============================================================================

func (s *Store) AddSong(ctx context.Context, id, location string) error {
	if id == "" || strings.ContainsRune(id, 0) {
		return metadata.NewInvalidArgumentError("content id must be non-empty and free of NUL bytes")
	}

	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(keyCacheInfo(id)); err == nil {
			return nil
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}

		seq, err := s.cacheSeq.Next()
		if err != nil {
			return err
		}
		record := &cacheRecord{Seq: seq, CacheInfo: *metadata.NewCacheInfo(id, location)}
		data, err := encodeCacheRecord(record)
		if err != nil {
			return err
		}
		if err := txn.Set(keyCacheInfo(id), data); err != nil {
			return err
		}

		song, err := encodeSongInfo(metadata.NewSongInfo(id))
		if err != nil {
			return err
		}
		return txn.Set(keySongInfo(id), song)
	})
	return wrap("add song", id, err)
}

func (s *Store) CacheSong(ctx context.Context, id string) error {
	return s.mutateCache(ctx, "cache song", id, func(c *metadata.CacheInfo) {
		c.Cached = true
	})
}

func (s *Store) UncacheSong(ctx context.Context, id string) error {
	return s.mutateCache(ctx, "uncache song", id, func(c *metadata.CacheInfo) {
		c.Cached = false
		c.StartChunk = metadata.NoChunk
		c.EndChunk = metadata.NoChunk
		c.SizeBytes = 0
	})
}

func (s *Store) SetStartChunk(ctx context.Context, id string, chunk int64) error {
	return s.mutateCache(ctx, "set start chunk", id, func(c *metadata.CacheInfo) { c.StartChunk = chunk })
}

func (s *Store) SetEndChunk(ctx context.Context, id string, chunk int64) error {
	return s.mutateCache(ctx, "set end chunk", id, func(c *metadata.CacheInfo) { c.EndChunk = chunk })
}

func (s *Store) SetSizeBytes(ctx context.Context, id string, size int64) error {
	if size < 0 {
		return metadata.NewInvalidArgumentError("size must not be negative")
	}
	return s.mutateCache(ctx, "set size", id, func(c *metadata.CacheInfo) { c.SizeBytes = size })
}

func (s *Store) IncrementPlaybacks(ctx context.Context, id string) error {
	return s.mutateCache(ctx, "increment playbacks", id, func(c *metadata.CacheInfo) { c.Playbacks++ })
}

func (s *Store) SetLink(ctx context.Context, id, link string) error {
	return s.mutateSong(ctx, "set link", id, func(i *metadata.SongInfo) { i.Link = link })
}

func (s *Store) SetThumbnailURL(ctx context.Context, id, url string) error {
	return s.mutateSong(ctx, "set thumbnail", id, func(i *metadata.SongInfo) { i.ThumbnailURL = url })
}

func (s *Store) SetTitle(ctx context.Context, id, title string) error {
	return s.mutateSong(ctx, "set title", id, func(i *metadata.SongInfo) { i.Title = title })
}

func (s *Store) SetArtist(ctx context.Context, id, artist string) error {
	return s.mutateSong(ctx, "set artist", id, func(i *metadata.SongInfo) { i.Artist = artist })
}

func (s *Store) SetDuration(ctx context.Context, id string, seconds int64) error {
	return s.mutateSong(ctx, "set duration", id, func(i *metadata.SongInfo) { i.Duration = seconds })
}

func (s *Store) mutateCache(ctx context.Context, op, id string, fn func(*metadata.CacheInfo)) error {
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		record, err := getCacheRecord(txn, id)
		if err != nil {
			return err
		}
		fn(&record.CacheInfo)
		data, err := encodeCacheRecord(record)
		if err != nil {
			return err
		}
		return txn.Set(keyCacheInfo(id), data)
	})
	return wrap(op, id, err)
}

func (s *Store) mutateSong(ctx context.Context, op, id string, fn func(*metadata.SongInfo)) error {
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		song, err := getSongInfo(txn, id)
		if err != nil {
			return err
		}
		fn(song)
		data, err := encodeSongInfo(song)
		if err != nil {
			return err
		}
		return txn.Set(keySongInfo(id), data)
	})
	return wrap(op, id, err)
}

func getCacheRecord(txn *badgerdb.Txn, id string) (*cacheRecord, error) {
	item, err := txn.Get(keyCacheInfo(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, metadata.NewNotFoundError(id)
	}
	if err != nil {
		return nil, err
	}
	var record *cacheRecord
	err = item.Value(func(val []byte) error {
		r, decErr := decodeCacheRecord(val)
		record = r
		return decErr
	})
	return record, err
}

func getSongInfo(txn *badgerdb.Txn, id string) (*metadata.SongInfo, error) {
	item, err := txn.Get(keySongInfo(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, metadata.NewNotFoundError(id)
	}
	if err != nil {
		return nil, err
	}
	var song *metadata.SongInfo
	err = item.Value(func(val []byte) error {
		s, decErr := decodeSongInfo(val)
		song = s
		return decErr
	})
	return song, err
}

// ============================================================================
// Locks
// ============================================================================

func (s *Store) AddLock(ctx context.Context, id string) (int64, error) {
	var lockID int64
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(keyCacheInfo(id)); errors.Is(err, badgerdb.ErrKeyNotFound) {
			return metadata.NewNotFoundError(id)
		} else if err != nil {
			return err
		}

		// Sequences start at zero; lock ids start at one. Ids consumed by a
		// retried transaction are skipped, never reused.
		next, err := s.lockSeq.Next()
		if err != nil {
			return err
		}
		lockID = int64(next) + 1

		if err := txn.Set(keyLock(lockID), []byte(id)); err != nil {
			return err
		}
		return txn.Set(keyLockIndex(id, lockID), nil)
	})
	if err != nil {
		return 0, wrap("add lock", id, err)
	}
	logger.Debug("Lock added", logger.KeyContentID, id, logger.KeyLockID, lockID)
	return lockID, nil
}

func (s *Store) RemoveLock(ctx context.Context, lockID int64) error {
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyLock(lockID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(keyLock(lockID)); err != nil {
			return err
		}
		return txn.Delete(keyLockIndex(string(id), lockID))
	})
	return wrap(fmt.Sprintf("remove lock %d", lockID), "", err)
}

func (s *Store) IsLocked(ctx context.Context, id string) (bool, error) {
	var locked bool
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		locked = hasLock(txn, id)
		return nil
	})
	return locked, wrap("is locked", id, err)
}

func hasLock(txn *badgerdb.Txn, id string) bool {
	prefix := keyLockIndexPrefix(id)
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(prefix)
	return it.ValidForPrefix(prefix)
}

// ============================================================================
// Readers
// ============================================================================

func (s *Store) GetCacheInfo(ctx context.Context, id string) (*metadata.CacheInfo, error) {
	var info *metadata.CacheInfo
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		record, err := getCacheRecord(txn, id)
		if err != nil {
			return err
		}
		info = &record.CacheInfo
		return nil
	})
	if err != nil {
		return nil, wrap("get cache info", id, err)
	}
	return info, nil
}

func (s *Store) GetSongInfo(ctx context.Context, id string) (*metadata.SongInfo, error) {
	var song *metadata.SongInfo
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		var err error
		song, err = getSongInfo(txn, id)
		return err
	})
	if err != nil {
		return nil, wrap("get song info", id, err)
	}
	return song, nil
}

func (s *Store) ListCacheInfo(ctx context.Context) ([]*metadata.CacheInfo, error) {
	var infos []*metadata.CacheInfo
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		records, err := listCacheRecords(txn)
		if err != nil {
			return err
		}
		infos = make([]*metadata.CacheInfo, 0, len(records))
		for _, r := range records {
			infos = append(infos, &r.CacheInfo)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("list cache info", "", err)
	}
	return infos, nil
}

func (s *Store) BestToRemove(ctx context.Context) (*metadata.CacheInfo, error) {
	var best *metadata.CacheInfo
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		records, err := listCacheRecords(txn)
		if err != nil {
			return err
		}
		entries := make([]*metadata.CacheInfo, 0, len(records))
		for _, r := range records {
			entries = append(entries, &r.CacheInfo)
		}
		best = metadata.SelectBestToRemove(entries, func(id string) bool {
			return hasLock(txn, id)
		})
		return nil
	})
	if err != nil {
		return nil, wrap("best to remove", "", err)
	}
	return best, nil
}

// listCacheRecords returns every cache record sorted by insertion sequence.
func listCacheRecords(txn *badgerdb.Txn) ([]*cacheRecord, error) {
	prefix := []byte(prefixCacheInfo)
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var records []*cacheRecord
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		err := it.Item().Value(func(val []byte) error {
			r, err := decodeCacheRecord(val)
			if err != nil {
				return err
			}
			records = append(records, r)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	return records, nil
}

// ============================================================================
// Lifecycle
// ============================================================================

func (s *Store) Healthcheck(ctx context.Context) error {
	err := s.view(ctx, func(txn *badgerdb.Txn) error { return nil })
	if err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

// Close releases the leased sequence ranges and closes the database.
func (s *Store) Close() error {
	var errs []error
	if err := s.cacheSeq.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := s.lockSeq.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var _ metadata.Store = (*Store)(nil)
