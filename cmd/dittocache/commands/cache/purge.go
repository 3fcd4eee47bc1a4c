package cache

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
)

var purgeForce bool

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cache that is not in use",
	Long: `Delete every tracked cache that is neither locked nor downloading.
Locked entries and the active download are kept.

Examples:
  # Ask before purging
  dittocache cache purge

  # Purge without confirmation
  dittocache cache purge --force`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().BoolVarP(&purgeForce, "force", "f", false, "Skip confirmation")
}

func runPurge(cmd *cobra.Command, args []string) error {
	return cmdutil.RunWithConfirmation("Delete every unused cache?", purgeForce, func() error {
		ctx, cancel := cmdutil.CallContext()
		defer cancel()

		client, err := cmdutil.GetWorkerClient(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		freed, err := client.Purge(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge cache: %w", err)
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Purged %s", humanize.IBytes(uint64(max(freed, 0)))))
		return nil
	})
}
