// Package cli holds the talktrack cobra commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/talktrack/internal/config"
	"github.com/markdave123-py/talktrack/internal/logger"
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "talktrack",
	Short: "Transcript ingestion service",
	Long: `talktrack stores uploaded transcripts and caption files, then chunks,
embeds and indexes them in the background so they can be searched.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (overrides LOG_LEVEL)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, logger.AppLogger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, logger.NewAppSLogger(version, cfg.LogLevel), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
