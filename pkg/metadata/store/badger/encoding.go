package badger

import (
	"encoding/binary"
	"encoding/json"

	"github.com/marmos91/dittocache/pkg/metadata"
)

// Key namespace:
//
//	ci:<contentID>                      cacheRecord (JSON)
//	si:<contentID>                      songRecord (JSON)
//	lk:<lockID u64 BE>                  contentID (bytes)
//	lc:<contentID>\x00<lockID u64 BE>   empty, lock index by content
//	seq:cache, seq:lock                 badger sequences
const (
	prefixCacheInfo = "ci:"
	prefixSongInfo  = "si:"
	prefixLock      = "lk:"
	prefixLockIndex = "lc:"

	seqCache = "seq:cache"
	seqLock  = "seq:lock"
)

func keyCacheInfo(id string) []byte { return []byte(prefixCacheInfo + id) }

func keySongInfo(id string) []byte { return []byte(prefixSongInfo + id) }

func keyLock(lockID int64) []byte {
	key := make([]byte, len(prefixLock)+8)
	copy(key, prefixLock)
	binary.BigEndian.PutUint64(key[len(prefixLock):], uint64(lockID))
	return key
}

func keyLockIndexPrefix(id string) []byte {
	return []byte(prefixLockIndex + id + "\x00")
}

func keyLockIndex(id string, lockID int64) []byte {
	prefix := keyLockIndexPrefix(id)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(lockID))
	return key
}

// cacheRecord is the stored form of metadata.CacheInfo. Seq preserves
// insertion order across the unordered key space.
type cacheRecord struct {
	Seq uint64 `json:"seq"`
	metadata.CacheInfo
}

func encodeCacheRecord(r *cacheRecord) ([]byte, error) { return json.Marshal(r) }

func decodeCacheRecord(data []byte) (*cacheRecord, error) {
	var r cacheRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func encodeSongInfo(s *metadata.SongInfo) ([]byte, error) { return json.Marshal(s) }

func decodeSongInfo(data []byte) (*metadata.SongInfo, error) {
	var s metadata.SongInfo
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
