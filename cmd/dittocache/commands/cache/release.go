package cache

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
)

var releaseCmd = &cobra.Command{
	Use:   "release <content-id>",
	Short: "Release a delete lock",
	Long: `Release one delete lock taken by 'dittocache cache location'.

Examples:
  dittocache cache release 'file$/music/So What.flac'`,
	Args: cobra.ExactArgs(1),
	RunE: runRelease,
}

func runRelease(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.CallContext()
	defer cancel()

	client, err := cmdutil.GetWorkerClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.ReleaseDeleteLock(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	cmdutil.PrintSuccess(fmt.Sprintf("Released lock on %s", args[0]))
	return nil
}
