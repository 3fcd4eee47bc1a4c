package cache

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
	"github.com/marmos91/dittocache/pkg/metadata"
)

var listCached bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache records",
	Long: `List the cache records of the metadata store in insertion order.

Examples:
  # Every record
  dittocache cache list

  # Only entries currently on disk
  dittocache cache list --cached

  # As YAML
  dittocache cache list -o yaml`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listCached, "cached", false, "Only list entries currently cached")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.CallContext()
	defer cancel()

	client, err := cmdutil.GetWorkerClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	infos, err := client.ListCacheInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cache records: %w", err)
	}

	if listCached {
		filtered := make([]*metadata.CacheInfo, 0, len(infos))
		for _, info := range infos {
			if info.Cached {
				filtered = append(filtered, info)
			}
		}
		infos = filtered
	}

	return cmdutil.PrintOutput(os.Stdout, infos, len(infos) == 0, "No cache records.", CacheInfoList(infos))
}
