package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/pkg/logger"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "midirelay",
		Short: "Relay a local MIDI keyboard to browsers over WebSocket",
		Long: `midirelay reads note presses from the first attached MIDI input and
streams them to every connected display client as 4-byte binary frames.

The same port also serves the client bundle and accepts song uploads.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		devicesCmd(),
		monitorCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// logFlags are the logging flags shared by every long-running command.
type logFlags struct {
	level  string
	format string
}

func (f *logFlags) register(cmd *cobra.Command, defaultLevel string) {
	cmd.Flags().StringVar(&f.level, "log-level", defaultLevel, "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&f.format, "log-format", string(logger.FormatJSON), "Log format: json or console")
}

func (f *logFlags) build() (*zap.Logger, error) {
	format := logger.Format(f.format)
	if format != logger.FormatJSON && format != logger.FormatConsole {
		return nil, fmt.Errorf("unknown log format %q", f.format)
	}
	return logger.New("midirelay", f.level, format)
}
