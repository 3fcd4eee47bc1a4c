package config

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
	"github.com/marmos91/dittocache/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the DittoCache configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  dittocache config validate

  # Validate specific config file
  dittocache config validate --config /etc/dittocache/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath := cmdutil.Flags.ConfigFile

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string

	if _, err := exec.LookPath(cfg.Transcoder.FFmpegPath); err != nil {
		warnings = append(warnings, fmt.Sprintf("ffmpeg not found at %q - non-PCM sources will fail", cfg.Transcoder.FFmpegPath))
	}
	if cfg.Metadata.Backend == "badger" && cfg.Metadata.Badger.Path == "" {
		warnings = append(warnings, "Badger path not configured - metadata will not survive a restart")
	}
	if cfg.Cache.EvictInterval == 0 {
		warnings = append(warnings, "Eviction sweep disabled - released locks are only reclaimed by the next download")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Cache root:       %s\n", cfg.Cache.Root)
	_, _ = fmt.Fprintf(out, "  Cache max size:   %s\n", cfg.Cache.MaxSize)
	_, _ = fmt.Fprintf(out, "  Metadata backend: %s\n", cfg.Metadata.Backend)
	_, _ = fmt.Fprintf(out, "  Database type:    %s\n", cfg.Database.Type)
	_, _ = fmt.Fprintf(out, "  Worker socket:    %s\n", cfg.Worker.SocketPath())
	_, _ = fmt.Fprintf(out, "  Log level:        %s\n", cfg.Logging.Level)

	return nil
}
