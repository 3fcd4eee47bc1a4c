package cache

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
	"github.com/marmos91/dittocache/internal/cli/timeutil"
	"github.com/marmos91/dittocache/pkg/downloader"
	"github.com/marmos91/dittocache/pkg/metadata"
)

var infoCmd = &cobra.Command{
	Use:   "info <content-id>",
	Short: "Show the stored records of a content id",
	Long: `Show the cache record, song metadata and lock state of a content id.

Examples:
  dittocache cache info 'file$/music/So What.flac'
  dittocache cache info 'file$/music/So What.flac' -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

type contentInfo struct {
	Cache  *metadata.CacheInfo `json:"cache" yaml:"cache"`
	Song   *metadata.SongInfo  `json:"song" yaml:"song"`
	Locked bool                `json:"locked" yaml:"locked"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.CallContext()
	defer cancel()

	client, err := cmdutil.GetWorkerClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	id := args[0]
	cacheInfo, err := client.GetCacheInfo(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get cache info: %w", err)
	}
	songInfo, err := client.GetSongInfo(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get song info: %w", err)
	}
	locked, err := client.IsLocked(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get lock state: %w", err)
	}

	info := contentInfo{Cache: cacheInfo, Song: songInfo, Locked: locked}

	return cmdutil.PrintPairs(os.Stdout, info, [][2]string{
		{"Content ID", id},
		{"Title", songInfo.Title},
		{"Artist", songInfo.Artist},
		{"Duration", timeutil.FormatTrackDuration(songInfo.Duration)},
		{"Link", songInfo.Link},
		{"Thumbnail", songInfo.ThumbnailURL},
		{"Cached", cmdutil.BoolToYesNo(cacheInfo.Cached)},
		{"Location", cacheInfo.CacheLocation},
		{"Size", humanize.IBytes(uint64(max(cacheInfo.SizeBytes, 0)))},
		{"Playtime", timeutil.FormatPlaytime(cacheInfo.SizeBytes, downloader.BytesPerSecond)},
		{"Chunks", chunkRange(cacheInfo)},
		{"Playbacks", strconv.FormatInt(cacheInfo.Playbacks, 10)},
		{"Locked", cmdutil.BoolToYesNo(locked)},
	})
}
