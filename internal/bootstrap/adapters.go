package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-reports-api/config"
	"github.com/target/mmk-reports-api/internal/adapters/reaper"
	"github.com/target/mmk-reports-api/internal/observability/metrics"
	"github.com/target/mmk-reports-api/internal/observability/statsd"
	"github.com/target/mmk-reports-api/internal/service"
	"github.com/target/mmk-reports-api/internal/service/workerpool"
)

// ReaperConfig contains configuration for the reaper service.
type ReaperConfig struct {
	Reports service.ReportMaintenance
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service and blocks until ctx is cancelled.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Reports: cfg.Reports,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}

// PoolMonitorConfig configures RunPoolMonitor.
type PoolMonitorConfig struct {
	Pool     *workerpool.Pool
	Metrics  statsd.Sink
	Interval time.Duration
}

// RunPoolMonitor publishes worker pool depth gauges until ctx is cancelled.
// It returns immediately when there is no pool or no sink.
func RunPoolMonitor(ctx context.Context, cfg PoolMonitorConfig) error {
	if cfg.Pool == nil || cfg.Metrics == nil {
		return nil
	}
	if cfg.Interval <= 0 {
		return errors.New("pool monitor interval must be positive")
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		stats := cfg.Pool.Stats()
		metrics.EmitPoolDepth(cfg.Metrics, stats.Queued, stats.Active)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
