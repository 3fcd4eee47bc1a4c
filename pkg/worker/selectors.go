// Package worker exposes a cache manager and its metadata store over the
// rpc channel. Service registers the handlers on a Responder, Client is the
// typed caller and Launch starts a worker process and waits until it
// accepts calls.
package worker

// Selectors of the cache manager procedures.
const (
	SelectorPing              uint32 = 0
	SelectorQueueSource       uint32 = 1
	SelectorGetCacheLocation  uint32 = 2
	SelectorReleaseDeleteLock uint32 = 3
	SelectorCacheStats        uint32 = 4
	SelectorPurge             uint32 = 5
)

// Selectors of the metadata store procedures.
const (
	SelectorAddSong            uint32 = 20
	SelectorCacheSong          uint32 = 21
	SelectorUncacheSong        uint32 = 22
	SelectorSetStartChunk      uint32 = 23
	SelectorSetEndChunk        uint32 = 24
	SelectorSetSizeBytes       uint32 = 25
	SelectorIncrementPlaybacks uint32 = 26
	SelectorSetLink            uint32 = 27
	SelectorSetThumbnailURL    uint32 = 28
	SelectorSetTitle           uint32 = 29
	SelectorSetArtist          uint32 = 30
	SelectorSetDuration        uint32 = 31
	SelectorAddLock            uint32 = 32
	SelectorRemoveLock         uint32 = 33
	SelectorIsLocked           uint32 = 34
	SelectorGetCacheInfo       uint32 = 35
	SelectorGetSongInfo        uint32 = 36
	SelectorBestToRemove       uint32 = 37
	SelectorListCacheInfo      uint32 = 38
)

var procedureNames = map[uint32]string{
	SelectorPing:               "Ping",
	SelectorQueueSource:        "QueueSource",
	SelectorGetCacheLocation:   "GetCacheLocation",
	SelectorReleaseDeleteLock:  "ReleaseDeleteLock",
	SelectorCacheStats:         "CacheStats",
	SelectorPurge:              "Purge",
	SelectorAddSong:            "AddSong",
	SelectorCacheSong:          "CacheSong",
	SelectorUncacheSong:        "UncacheSong",
	SelectorSetStartChunk:      "SetStartChunk",
	SelectorSetEndChunk:        "SetEndChunk",
	SelectorSetSizeBytes:       "SetSizeBytes",
	SelectorIncrementPlaybacks: "IncrementPlaybacks",
	SelectorSetLink:            "SetLink",
	SelectorSetThumbnailURL:    "SetThumbnailURL",
	SelectorSetTitle:           "SetTitle",
	SelectorSetArtist:          "SetArtist",
	SelectorSetDuration:        "SetDuration",
	SelectorAddLock:            "AddLock",
	SelectorRemoveLock:         "RemoveLock",
	SelectorIsLocked:           "IsLocked",
	SelectorGetCacheInfo:       "GetCacheInfo",
	SelectorGetSongInfo:        "GetSongInfo",
	SelectorBestToRemove:       "BestToRemove",
	SelectorListCacheInfo:      "ListCacheInfo",
}

// ProcedureName returns the name of selector, or "" if it is unknown.
func ProcedureName(selector uint32) string {
	return procedureNames[selector]
}
