package cache

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
	"github.com/marmos91/dittocache/pkg/metadata"
)

var bestCmd = &cobra.Command{
	Use:   "best",
	Short: "Show the next eviction candidate",
	Long: `Show the cached, unlocked entry with the highest size per playback, which
is the first entry the worker evicts from residue of earlier runs.

Examples:
  dittocache cache best`,
	Args: cobra.NoArgs,
	RunE: runBest,
}

func runBest(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.CallContext()
	defer cancel()

	client, err := cmdutil.GetWorkerClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	best, err := client.BestToRemove(ctx)
	if err != nil {
		return fmt.Errorf("failed to get eviction candidate: %w", err)
	}

	var rows []*metadata.CacheInfo
	if best != nil {
		rows = append(rows, best)
	}
	return cmdutil.PrintOutput(os.Stdout, best, best == nil, "No eviction candidate.", CacheInfoList(rows))
}
