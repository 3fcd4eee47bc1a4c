// Package cmdutil provides shared utilities for dittocache commands.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marmos91/dittocache/internal/cli/output"
	"github.com/marmos91/dittocache/internal/cli/prompt"
	"github.com/marmos91/dittocache/pkg/config"
	"github.com/marmos91/dittocache/pkg/rpc"
	"github.com/marmos91/dittocache/pkg/worker"
)

// DefaultCallTimeout bounds a single CLI call, connection included.
const DefaultCallTimeout = 30 * time.Second

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	NoColor    bool
}

// LoadConfig loads the configuration selected by --config. Unlike
// config.MustLoad it accepts a missing default file, so cache commands work
// against a worker started with defaults and environment overrides.
func LoadConfig() (*config.Config, error) {
	if Flags.ConfigFile != "" {
		return config.MustLoad(Flags.ConfigFile)
	}
	return config.Load("")
}

// RequesterConfig derives the client settings from the worker section.
func RequesterConfig(cfg *config.Config) rpc.RequesterConfig {
	return rpc.RequesterConfig{
		Address:          cfg.Worker.SocketPath(),
		RetryInterval:    cfg.Worker.RetryInterval,
		MaxRetryInterval: cfg.Worker.MaxRetryInterval,
		GiveUpAfter:      cfg.Worker.GiveUpAfter,
	}
}

// GetWorkerClient connects to the worker named by the configuration. A CLI
// call never waits forever: when the configuration retries without limit,
// ctx bounds the connection attempt instead.
func GetWorkerClient(ctx context.Context) (*worker.Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	client, err := worker.Dial(ctx, RequesterConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w\nIs the worker running? Start it with: dittocache start", err)
	}
	return client, nil
}

// CallContext returns the context of one CLI invocation.
func CallContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), DefaultCallTimeout)
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data in the selected format (JSON, YAML, or table).
// For table format, it displays emptyMsg if data is empty, otherwise uses the tableRenderer.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintPairs prints data as a key-value table, or as JSON/YAML.
func PrintPairs(w io.Writer, data any, pairs [][2]string) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		return output.SimpleTable(w, pairs)
	}
}

// PrintSuccess prints a success message if the output format is table.
func PrintSuccess(msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	printer := output.NewPrinter(os.Stdout, !Flags.NoColor)
	printer.Success(msg)
}

// RunWithConfirmation prompts for confirmation (unless force is true) and
// runs fn.
func RunWithConfirmation(label string, force bool, fn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(label, force)
	if err != nil {
		return HandleAbort(err)
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}
	return fn()
}

// HandleAbort checks if error is an abort (Ctrl+C) and prints a message.
// Returns nil for abort (user cancelled), otherwise returns the original error.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}

// BoolToYesNo converts a boolean to "yes" or "no" string.
func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// EmptyOr returns the value if not empty, otherwise returns the fallback.
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
