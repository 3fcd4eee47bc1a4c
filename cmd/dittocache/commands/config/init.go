package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
	"github.com/marmos91/dittocache/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Write a DittoCache configuration file holding the default values.

By default, the configuration file is created at $XDG_CONFIG_HOME/dittocache/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  dittocache config init

  # Initialize with custom path
  dittocache config init --config /etc/dittocache/config.yaml

  # Overwrite an existing file without asking
  dittocache config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file without confirmation")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := cmdutil.Flags.ConfigFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	write := func() error {
		if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
		_, _ = fmt.Fprintln(out, "\nNext steps:")
		_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
		_, _ = fmt.Fprintln(out, "  2. Start a worker with: dittocache start")
		_, _ = fmt.Fprintf(out, "  3. Or specify custom config: dittocache start --config %s\n", configPath)
		return nil
	}

	if _, err := os.Stat(configPath); err == nil {
		return cmdutil.RunWithConfirmation(
			fmt.Sprintf("Overwrite existing configuration at %s?", configPath),
			initForce,
			write,
		)
	}
	return write()
}
