package cache

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
)

var locationCmd = &cobra.Command{
	Use:   "location <content-id>",
	Short: "Get the cache directory of a content id",
	Long: `Print the cache directory of a content id once enough of it is cached to
start streaming. The id is queued first when needed.

The call takes a delete lock on the entry; release it with
'dittocache cache release' when done reading.

Examples:
  dittocache cache location 'file$/music/So What.flac'`,
	Args: cobra.ExactArgs(1),
	RunE: runLocation,
}

func runLocation(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.CallContext()
	defer cancel()

	client, err := cmdutil.GetWorkerClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	location, err := client.GetCacheLocation(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get cache location: %w", err)
	}

	result := struct {
		ContentID string `json:"content_id" yaml:"content_id"`
		Location  string `json:"location" yaml:"location"`
	}{args[0], location}

	return cmdutil.PrintPairs(os.Stdout, result, [][2]string{
		{"Content ID", result.ContentID},
		{"Location", result.Location},
	})
}
