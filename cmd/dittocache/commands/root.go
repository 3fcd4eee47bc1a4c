// Package commands implements the dittocache CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
	"github.com/marmos91/dittocache/cmd/dittocache/commands/cache"
	"github.com/marmos91/dittocache/cmd/dittocache/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dittocache",
	Short: "DittoCache - Bounded disk cache for streamed audio",
	Long: `DittoCache downloads audio sources, transcodes them to raw PCM and keeps
them in a size-bounded disk cache. A worker process owns the cache and serves
other processes over a local unix socket.

Use "dittocache [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cmdutil.Flags.ConfigFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittocache/config.yaml)")
	flags.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format (table|json|yaml)")
	flags.BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(cache.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cmdutil.Flags.ConfigFile
}
