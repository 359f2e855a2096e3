// Command cricbot is the entry point for the IPL betting pipeline. It loads
// configuration, applies command-line overrides, validates it, sets up signal
// handling, and runs the application in the selected mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/cricbot/internal/app"
	"github.com/alanyoungcy/cricbot/internal/config"
)

// eventIDs collects -event-id flags; each may hold a comma-separated list.
type eventIDs []string

func (e *eventIDs) String() string { return strings.Join(*e, ",") }

func (e *eventIDs) Set(v string) error {
	for _, id := range strings.Split(v, ",") {
		if id = strings.TrimSpace(id); id != "" {
			*e = append(*e, id)
		}
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var events eventIDs
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (prefetch, bet, schedule, history)")
	dryRun := flag.Bool("dry-run", false, "record bets without submitting them")
	live := flag.Bool("live", false, "submit bets even if the configuration enables dry-run")
	flag.Var(&events, "event-id", "event id to process instead of discovery; repeatable or comma-separated")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return 1
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *dryRun && *live {
		logger.Error("-dry-run and -live are mutually exclusive")
		return 2
	}
	if *dryRun {
		cfg.Executor.DryRun = true
	}
	if *live {
		cfg.Executor.DryRun = false
	}

	var out io.Writer = os.Stdout
	if cfg.Mode == "history" {
		// Keep stdout for the report.
		out = os.Stderr
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Error("failed to open log file",
				slog.String("path", cfg.LogFile),
				slog.String("error", err.Error()),
			)
			return 1
		}
		defer f.Close()
		out = io.MultiWriter(out, f)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("cricbot starting",
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
		slog.Any("event_ids", []string(events)),
	)

	application := app.New(cfg, logger)
	application.SetEventIDs(events)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
			return 0
		}
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}

	logger.Info("cricbot stopped")
	return 0
}
