package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-reports-api/config"
	"github.com/target/mmk-reports-api/internal/domain/model"
	obserrors "github.com/target/mmk-reports-api/internal/observability/errors"
	"github.com/target/mmk-reports-api/internal/observability/metrics"
	"github.com/target/mmk-reports-api/internal/observability/statsd"
)

// ReportMaintenance is the slice of ReportService the reaper drives. Each call handles one batch.
type ReportMaintenance interface {
	FailStaleProcessing(ctx context.Context, maxAge time.Duration, batchSize int) (int, error)
	RedispatchStalePending(ctx context.Context, maxAge time.Duration, batchSize int) (int, error)
	PruneFinished(ctx context.Context, status model.ReportStatus, maxAge time.Duration, batchSize int) (int, error)
}

var _ ReportMaintenance = (*ReportService)(nil)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Reports ReportMaintenance   // Required: report maintenance operations
	Config  config.ReaperConfig // Required: reaper configuration
	Logger  *slog.Logger        // Optional: structured logger
	Metrics statsd.Sink         // Optional: metrics sink (StatsD-compatible)
}

// ReaperService provides report job cleanup operations.
//
// This service manages:
// - Failing PROCESSING jobs whose execution was lost.
// - Re-dispatching PENDING jobs that were never picked up.
// - Deleting old completed and failed jobs.
type ReaperService struct {
	reports ReportMaintenance
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Reports == nil {
		return nil, errors.New("ReportMaintenance is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}
	if opts.Config.BatchSize <= 0 {
		return nil, errors.New("reaper batch size must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"processing_max_age", opts.Config.ProcessingMaxAge,
			"pending_redispatch_age", opts.Config.PendingRedispatchAge,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"failed_max_age", opts.Config.FailedMaxAge,
		)
	}

	return &ReaperService{
		reports: opts.Reports,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// It performs cleanup operations at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Stagger instances that start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// RunOnce performs every enabled cleanup step once. Steps run independently; a failing
// step does not prevent the others.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	var (
		errs               []error
		allContextCanceled = true
		outcomes           []stepResult
	)

	for _, step := range s.steps() {
		count, err := step.fn(ctx)
		outcomes = append(outcomes, stepResult{operation: step.operation, count: count, err: suppressContextCancellation(err)})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allContextCanceled = allContextCanceled && isContextCancellation(err)
		}
	}

	s.emitCleanupMetrics(outcomes, time.Since(start))

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}
	return nil
}

type cleanupFunc func(context.Context) (int, error)

type cleanupStep struct {
	fn        cleanupFunc
	label     string
	operation string
}

type stepResult struct {
	operation string
	count     int
	err       error
}

func (s *ReaperService) steps() []cleanupStep {
	steps := make([]cleanupStep, 0, 4)
	if s.config.ProcessingMaxAge > 0 {
		steps = append(steps, cleanupStep{
			fn:        s.failStaleProcessing,
			label:     "fail stale processing reports",
			operation: "fail_processing",
		})
	}
	if s.config.PendingRedispatchAge > 0 {
		steps = append(steps, cleanupStep{
			fn:        s.redispatchStalePending,
			label:     "redispatch stale pending reports",
			operation: "redispatch_pending",
		})
	}
	steps = append(steps,
		cleanupStep{
			fn:        s.pruner(model.ReportStatusCompleted, s.config.CompletedMaxAge),
			label:     "delete old completed reports",
			operation: "delete_completed",
		},
		cleanupStep{
			fn:        s.pruner(model.ReportStatusFailed, s.config.FailedMaxAge),
			label:     "delete old failed reports",
			operation: "delete_failed",
		},
	)
	return steps
}

// failStaleProcessing loops until no more rows are affected.
func (s *ReaperService) failStaleProcessing(ctx context.Context) (int, error) {
	total, err := s.drain(ctx, func(ctx context.Context) (int, error) {
		return s.reports.FailStaleProcessing(ctx, s.config.ProcessingMaxAge, s.config.BatchSize)
	})
	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed stale processing reports",
			"count", total,
			"max_age", s.config.ProcessingMaxAge,
		)
	}
	return total, err
}

// redispatchStalePending handles a single batch. Re-dispatched jobs stay PENDING until a
// worker claims them, so looping would select the same rows again.
func (s *ReaperService) redispatchStalePending(ctx context.Context) (int, error) {
	count, err := s.reports.RedispatchStalePending(ctx, s.config.PendingRedispatchAge, s.config.BatchSize)
	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "redispatched stale pending reports",
			"count", count,
			"max_age", s.config.PendingRedispatchAge,
		)
	}
	return count, err
}

func (s *ReaperService) pruner(status model.ReportStatus, maxAge time.Duration) cleanupFunc {
	return func(ctx context.Context) (int, error) {
		total, err := s.drain(ctx, func(ctx context.Context) (int, error) {
			return s.reports.PruneFinished(ctx, status, maxAge, s.config.BatchSize)
		})
		if total > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "deleted old reports",
				"status", status,
				"count", total,
				"max_age", maxAge,
			)
		}
		return total, err
	}
}

// drain repeats batch until it affects no rows, checking ctx between batches.
func (s *ReaperService) drain(ctx context.Context, batch cleanupFunc) (int, error) {
	total := 0
	for {
		count, err := batch(ctx)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

func (s *ReaperService) emitCleanupMetrics(outcomes []stepResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	total := 0
	var firstErr error
	for _, o := range outcomes {
		total += o.count
		if firstErr == nil {
			firstErr = o.err
		}
	}

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if total == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}
	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}

	for _, o := range outcomes {
		s.emitCleanupOperationMetric(o)
	}

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitCleanupOperationMetric(o stepResult) {
	result := metrics.ResultSuccess
	if o.err != nil {
		result = metrics.ResultError
	} else if o.count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": o.operation,
		"result":    result,
	}
	if o.err != nil {
		if class := obserrors.Classify(o.err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	metrics.EmitReaper(s.metrics, o.operation, o.count)
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
