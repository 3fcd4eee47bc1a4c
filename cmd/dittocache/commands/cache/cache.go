// Package cache implements the subcommands that talk to a running worker.
package cache

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
	"github.com/marmos91/dittocache/pkg/metadata"
)

// Cmd is the cache subcommand.
var Cmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and drive a running worker",
	Long: `Call a running cache worker over its unix socket.

The socket path is derived from the worker section of the configuration, so
pass the same --config the worker was started with.

Subcommands:
  queue     Queue a download
  location  Get the cache directory of a content id and take a delete lock
  release   Release a delete lock
  info      Show the stored records of a content id
  stats     Show cache usage
  list      List every cache record
  best      Show the next eviction candidate
  purge     Delete every cache that is not in use`,
}

func init() {
	Cmd.AddCommand(queueCmd)
	Cmd.AddCommand(locationCmd)
	Cmd.AddCommand(releaseCmd)
	Cmd.AddCommand(infoCmd)
	Cmd.AddCommand(statsCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(bestCmd)
	Cmd.AddCommand(purgeCmd)
}

// CacheInfoList renders cache records as a table.
type CacheInfoList []*metadata.CacheInfo

// Headers implements TableRenderer.
func (l CacheInfoList) Headers() []string {
	return []string{"CONTENT_ID", "CACHED", "SIZE", "CHUNKS", "PLAYBACKS", "LOCATION"}
}

// Rows implements TableRenderer.
func (l CacheInfoList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, info := range l {
		rows = append(rows, []string{
			info.ContentID,
			cmdutil.BoolToYesNo(info.Cached),
			humanize.IBytes(uint64(max(info.SizeBytes, 0))),
			chunkRange(info),
			humanize.Comma(info.Playbacks),
			info.CacheLocation,
		})
	}
	return rows
}

func chunkRange(info *metadata.CacheInfo) string {
	if info.StartChunk == metadata.NoChunk || info.EndChunk == metadata.NoChunk {
		return "-"
	}
	return humanize.Comma(info.StartChunk) + "-" + humanize.Comma(info.EndChunk)
}
