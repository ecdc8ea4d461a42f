package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obsidianstack/scalarship/agent/internal/config"
	"github.com/obsidianstack/scalarship/agent/internal/scraper"
	"github.com/obsidianstack/scalarship/agent/internal/shipper"
	"github.com/obsidianstack/scalarship/agent/internal/uploader"
	"github.com/obsidianstack/scalarship/pkg/telemetry"
	"github.com/obsidianstack/scalarship/pkg/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	deleteID := flag.String("delete-experiment", "", "delete this experiment on the collector and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("scalarship-agent starting", "config", *configPath, "version", types.Version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"experiment_id", cfg.Agent.ExperimentID,
		"sources", len(cfg.Agent.Sources),
		"poll_interval", cfg.Agent.PollInterval,
		"write_rate", cfg.Agent.WriteRate,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, *configPath, *deleteID)
	cancel()
	os.Exit(code)
}

// run holds everything that needs deferred cleanup so main can exit with
// a status code afterwards.
func run(ctx context.Context, cfg *config.Config, configPath, deleteID string) int {
	shutdownTracing, err := telemetry.Setup(ctx, "scalarship-agent")
	if err != nil {
		slog.Warn("tracing disabled", "err", err)
	}
	defer func() {
		flushCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown", "err", err)
		}
	}()

	client, err := shipper.Dial(cfg.Agent)
	if err != nil {
		slog.Error("failed to create collector client", "err", err)
		return 1
	}
	defer client.Close() //nolint:errcheck

	if deleteID != "" {
		if err := uploader.DeleteExperiment(ctx, client, deleteID); err != nil {
			slog.Error("delete experiment failed", "experiment_id", deleteID, "err", err)
			return 1
		}
		slog.Info("experiment deleted", "experiment_id", deleteID)
		return 0
	}

	collector, err := scraper.NewCollector(cfg.Agent.Sources)
	if err != nil {
		slog.Error("failed to build sources", "err", err)
		return 1
	}
	for _, src := range cfg.Agent.Sources {
		slog.Info("registered source", "id", src.ID, "type", src.Type, "run", src.RunName())
	}

	up := uploader.New(client, collector, cfg.Agent.ExperimentID,
		uploader.WithPollInterval(cfg.Agent.PollInterval),
		uploader.WithWriteRate(cfg.Agent.WriteRate),
	)

	// Only the poll interval is applied live; other changes need a restart.
	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			up.SetPollInterval(updated.Agent.PollInterval)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	err = up.Run(ctx)

	st := up.Stats()
	slog.Info("scalarship-agent stopped",
		"cycles", st.Cycles,
		"batches_sent", st.BatchesSent,
		"points_sent", st.PointsSent,
		"bytes_sent", st.BytesSent,
		"batches_skipped", st.BatchesSkipped,
	)

	switch {
	case err == nil:
		return 0
	case errors.Is(err, uploader.ErrExperimentNotFound):
		slog.Error("experiment no longer exists on the collector", "experiment_id", cfg.Agent.ExperimentID)
	default:
		slog.Error("upload failed", "err", err)
	}
	return 1
}
