package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/handoff/internal/control"
	"github.com/vietddude/handoff/internal/core/config"
	"github.com/vietddude/handoff/internal/scheduler"
)

var (
	cfgPath   string
	isDebug   bool
	runSweeps bool
)

var rootCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Handoff session lifecycle service",
	Long:  `Handoff manages agent session expiration, archival, and retention sweeps with recovery-aware execution.`,
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&runSweeps, "sweeps", true, "start the scheduled retention sweeps")
}

func runServe(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	// --sweeps=false keeps jobs registered but never started.
	if !runSweeps {
		if cfg.Jobs == nil {
			cfg.Jobs = make(map[string]config.JobConfig)
		}
		off := false
		for name := range scheduler.DefaultJobConfigs() {
			jc := cfg.Jobs[name]
			jc.Enabled = &off
			cfg.Jobs[name] = jc
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Service
	app, err := control.NewService(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start service", "error", err)
		os.Exit(1)
	}

	slog.Info("Service started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
