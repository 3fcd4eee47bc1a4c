package worker

import (
	"context"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/cachemanager"
	"github.com/marmos91/dittocache/pkg/metadata"
	"github.com/marmos91/dittocache/pkg/rpc"
)

// Service serves a cache manager and a metadata store. Either may be nil,
// in which case its selectors are not registered.
type Service struct {
	manager *cachemanager.Manager
	store   metadata.Store
}

// NewService returns a Service for manager and store.
func NewService(manager *cachemanager.Manager, store metadata.Store) *Service {
	return &Service{manager: manager, store: store}
}

// Register installs the handlers on r.
func (s *Service) Register(r *rpc.Responder) {
	reg := func(selector uint32, fn rpc.HandlerFunc) {
		r.Register(selector, ProcedureName(selector), fn)
	}

	reg(SelectorPing, func(context.Context, []rpc.Value) (rpc.Value, error) {
		return rpc.String("pong"), nil
	})

	if s.manager != nil {
		reg(SelectorQueueSource, s.queueSource)
		reg(SelectorGetCacheLocation, s.getCacheLocation)
		reg(SelectorReleaseDeleteLock, s.releaseDeleteLock)
		reg(SelectorCacheStats, s.cacheStats)
		reg(SelectorPurge, s.purge)
	}

	if s.store != nil {
		st := s.store
		reg(SelectorAddSong, withIDString(st.AddSong))
		reg(SelectorCacheSong, withID(st.CacheSong))
		reg(SelectorUncacheSong, withID(st.UncacheSong))
		reg(SelectorSetStartChunk, withIDInt(st.SetStartChunk))
		reg(SelectorSetEndChunk, withIDInt(st.SetEndChunk))
		reg(SelectorSetSizeBytes, withIDInt(st.SetSizeBytes))
		reg(SelectorIncrementPlaybacks, withID(st.IncrementPlaybacks))
		reg(SelectorSetLink, withIDString(st.SetLink))
		reg(SelectorSetThumbnailURL, withIDString(st.SetThumbnailURL))
		reg(SelectorSetTitle, withIDString(st.SetTitle))
		reg(SelectorSetArtist, withIDString(st.SetArtist))
		reg(SelectorSetDuration, withIDInt(st.SetDuration))
		reg(SelectorAddLock, s.addLock)
		reg(SelectorRemoveLock, s.removeLock)
		reg(SelectorIsLocked, s.isLocked)
		reg(SelectorGetCacheInfo, s.getCacheInfo)
		reg(SelectorGetSongInfo, s.getSongInfo)
		reg(SelectorBestToRemove, s.bestToRemove)
		reg(SelectorListCacheInfo, s.listCacheInfo)
	}
}

// ============================================================================
// Cache manager
// ============================================================================

func (s *Service) queueSource(ctx context.Context, args []rpc.Value) (rpc.Value, error) {
	contentID, err := argString(args, 0)
	if err != nil {
		return rpc.Value{}, err
	}
	ctx = logger.ContentContext(ctx, contentID)
	if err := s.manager.QueueSource(ctx, contentID); err != nil {
		return rpc.Value{}, err
	}
	return rpc.Void(), nil
}

func (s *Service) getCacheLocation(ctx context.Context, args []rpc.Value) (rpc.Value, error) {
	contentID, err := argString(args, 0)
	if err != nil {
		return rpc.Value{}, err
	}
	ctx = logger.ContentContext(ctx, contentID)
	dir, err := s.manager.GetCacheLocation(ctx, contentID)
	if err != nil {
		return rpc.Value{}, err
	}
	return rpc.String(dir), nil
}

func (s *Service) releaseDeleteLock(_ context.Context, args []rpc.Value) (rpc.Value, error) {
	contentID, err := argString(args, 0)
	if err != nil {
		return rpc.Value{}, err
	}
	if err := s.manager.ReleaseDeleteLock(contentID); err != nil {
		return rpc.Value{}, err
	}
	return rpc.Void(), nil
}

func (s *Service) cacheStats(context.Context, []rpc.Value) (rpc.Value, error) {
	return encode(statsFrom(s.manager.Stats()))
}

func (s *Service) purge(ctx context.Context, _ []rpc.Value) (rpc.Value, error) {
	freed, err := s.manager.Purge(ctx)
	if err != nil {
		return rpc.Value{}, err
	}
	return rpc.Int(freed), nil
}

// ============================================================================
// Metadata store
// ============================================================================

func withID(fn func(ctx context.Context, id string) error) rpc.HandlerFunc {
	return func(ctx context.Context, args []rpc.Value) (rpc.Value, error) {
		contentID, err := argString(args, 0)
		if err != nil {
			return rpc.Value{}, err
		}
		if err := fn(ctx, contentID); err != nil {
			return rpc.Value{}, err
		}
		return rpc.Void(), nil
	}
}

func withIDString(fn func(ctx context.Context, id, value string) error) rpc.HandlerFunc {
	return func(ctx context.Context, args []rpc.Value) (rpc.Value, error) {
		contentID, err := argString(args, 0)
		if err != nil {
			return rpc.Value{}, err
		}
		value, err := argString(args, 1)
		if err != nil {
			return rpc.Value{}, err
		}
		if err := fn(ctx, contentID, value); err != nil {
			return rpc.Value{}, err
		}
		return rpc.Void(), nil
	}
}

func withIDInt(fn func(ctx context.Context, id string, value int64) error) rpc.HandlerFunc {
	return func(ctx context.Context, args []rpc.Value) (rpc.Value, error) {
		contentID, err := argString(args, 0)
		if err != nil {
			return rpc.Value{}, err
		}
		value, err := argInt(args, 1)
		if err != nil {
			return rpc.Value{}, err
		}
		if err := fn(ctx, contentID, value); err != nil {
			return rpc.Value{}, err
		}
		return rpc.Void(), nil
	}
}

func (s *Service) addLock(ctx context.Context, args []rpc.Value) (rpc.Value, error) {
	contentID, err := argString(args, 0)
	if err != nil {
		return rpc.Value{}, err
	}
	lockID, err := s.store.AddLock(ctx, contentID)
	if err != nil {
		return rpc.Value{}, err
	}
	return rpc.Int(lockID), nil
}

func (s *Service) removeLock(ctx context.Context, args []rpc.Value) (rpc.Value, error) {
	lockID, err := argInt(args, 0)
	if err != nil {
		return rpc.Value{}, err
	}
	if err := s.store.RemoveLock(ctx, lockID); err != nil {
		return rpc.Value{}, err
	}
	return rpc.Void(), nil
}

func (s *Service) isLocked(ctx context.Context, args []rpc.Value) (rpc.Value, error) {
	contentID, err := argString(args, 0)
	if err != nil {
		return rpc.Value{}, err
	}
	locked, err := s.store.IsLocked(ctx, contentID)
	if err != nil {
		return rpc.Value{}, err
	}
	return rpc.Bool(locked), nil
}

func (s *Service) getCacheInfo(ctx context.Context, args []rpc.Value) (rpc.Value, error) {
	contentID, err := argString(args, 0)
	if err != nil {
		return rpc.Value{}, err
	}
	info, err := s.store.GetCacheInfo(ctx, contentID)
	if err != nil {
		return rpc.Value{}, err
	}
	return encode(*info)
}

func (s *Service) getSongInfo(ctx context.Context, args []rpc.Value) (rpc.Value, error) {
	contentID, err := argString(args, 0)
	if err != nil {
		return rpc.Value{}, err
	}
	song, err := s.store.GetSongInfo(ctx, contentID)
	if err != nil {
		return rpc.Value{}, err
	}
	return encode(*song)
}

func (s *Service) bestToRemove(ctx context.Context, _ []rpc.Value) (rpc.Value, error) {
	best, err := s.store.BestToRemove(ctx)
	if err != nil {
		return rpc.Value{}, err
	}
	if best == nil {
		return rpc.Void(), nil
	}
	return encode(*best)
}

func (s *Service) listCacheInfo(ctx context.Context, _ []rpc.Value) (rpc.Value, error) {
	infos, err := s.store.ListCacheInfo(ctx)
	if err != nil {
		return rpc.Value{}, err
	}
	list := cacheInfoList{Entries: make([]metadata.CacheInfo, 0, len(infos))}
	for _, info := range infos {
		list.Entries = append(list.Entries, *info)
	}
	return encode(list)
}
