package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"proctor-service/internal/config"
	"proctor-service/internal/logger"
	"proctor-service/internal/registry"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath string

	// populated by the root PersistentPreRunE for every subcommand
	appConfig *config.Config
	appLog    zerolog.Logger
	logSink   io.Closer
)

var rootCmd = &cobra.Command{
	Use:     "proctor",
	Short:   "Webcam frame analysis for online exam proctoring",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log, closer, err := logger.New(cfg.Log, cfg.Environment)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		appConfig, appLog, logSink = cfg, log, closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logSink != nil {
			_ = logSink.Close()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (env PROCTOR_* overrides)")
}

func registryConfig(cfg config.ModelsConfig) registry.Config {
	return registry.Config{
		Dir:     cfg.Dir,
		Cascade: cfg.Cascade,
		Weights: cfg.Weights,
		Labels:  cfg.Labels,
	}
}
