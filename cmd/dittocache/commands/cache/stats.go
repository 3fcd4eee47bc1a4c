package cache

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache usage",
	Long: `Show the cached bytes, the configured maximum and the download queue of
a running worker.

Examples:
  dittocache cache stats
  dittocache cache stats -o json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.CallContext()
	defer cancel()

	client, err := cmdutil.GetWorkerClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	stats, err := client.CacheStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get cache stats: %w", err)
	}

	usage := "-"
	if stats.MaxBytes > 0 {
		usage = humanize.FormatFloat("#,###.#", float64(stats.TotalBytes)*100/float64(stats.MaxBytes)) + "%"
	}

	return cmdutil.PrintPairs(os.Stdout, stats, [][2]string{
		{"Cached", humanize.IBytes(uint64(max(stats.TotalBytes, 0)))},
		{"Maximum", humanize.IBytes(uint64(max(stats.MaxBytes, 0)))},
		{"Usage", usage},
		{"Tracked", strconv.FormatUint(uint64(stats.Tracked), 10)},
		{"Residue", strconv.FormatUint(uint64(stats.Residue), 10)},
		{"Queued", strconv.FormatUint(uint64(stats.Queued), 10)},
		{"Downloading", cmdutil.EmptyOr(stats.Active, "-")},
	})
}
