package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kernelretry/pkg/config"
	"kernelretry/pkg/logger"
)

var (
	appVersion = "dev"
	commitHash = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "kernel",
	Short:         "Chat completion client with configurable retry policies",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       fmt.Sprintf("%s (%s)", appVersion, commitHash),
}

var (
	flagPolicyFile string
	flagDemo       bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagPolicyFile, "policy", "",
		"YAML file with the retry policy. Values from the environment are used for missing keys.")
	rootCmd.PersistentFlags().BoolVar(&flagDemo, "demo", false,
		"Also retry 401 responses so that a wrong API key shows the retry sequence.")

	rootCmd.AddCommand(newCompleteCmd())
	rootCmd.AddCommand(newPolicyCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// setup loads the environment configuration and builds the logger. An invalid
// environment falls back to defaults with a warning, like the backend does.
func setup() (*config.Config, logger.Logger) {
	cfg, loadErr := config.Load()
	if loadErr != nil {
		cfg = config.DefaultConfig()
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Logger.Level,
		Pretty:     cfg.Logger.Pretty,
		JSON:       cfg.Logger.JSON,
		File:       cfg.Logger.File,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
	})

	if loadErr != nil {
		log.Warn("invalid environment, using defaults", map[string]interface{}{
			"error": loadErr.Error(),
		})
	}
	return cfg, log
}
