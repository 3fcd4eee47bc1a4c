package cache

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
)

var queueCmd = &cobra.Command{
	Use:   "queue <content-id>...",
	Short: "Queue downloads",
	Long: `Queue one or more content ids for download. Ids already cached or
already queued are left alone.

Examples:
  dittocache cache queue 'file$/music/Kind of Blue/01 So What.flac'
  dittocache cache queue 'http$https://example.com/track.mp3' 's3$bucket/a.ogg'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQueue,
}

func runQueue(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.CallContext()
	defer cancel()

	client, err := cmdutil.GetWorkerClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	for _, id := range args {
		if err := client.QueueSource(ctx, id); err != nil {
			return fmt.Errorf("failed to queue %s: %w", id, err)
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Queued %s", id))
	}
	return nil
}
