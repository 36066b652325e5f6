package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-reports-api/internal/core"
	"github.com/target/mmk-reports-api/internal/domain/model"
	apperrors "github.com/target/mmk-reports-api/internal/errors"
	"github.com/target/mmk-reports-api/internal/observability/metrics"
	"github.com/target/mmk-reports-api/internal/observability/statsd"
	"github.com/target/mmk-reports-api/internal/service/workerpool"
	"golang.org/x/sync/singleflight"
)

// Messages recorded on jobs that fail for reasons other than an executor error.
const (
	MessageInterrupted    = "Report generation was interrupted"
	MessageStaleExecution = "Report generation exceeded maximum processing time"
	messageGenericFailure = "report generation failed"
)

const (
	defaultTerminalWriteTimeout = 10 * time.Second
)

var errExecutionTimeout = errors.New("report execution timeout")

// Dispatcher accepts background tasks without blocking. *workerpool.Pool satisfies it.
type Dispatcher interface {
	Submit(task workerpool.Task) error
}

// ReportServiceConfig tunes execution behaviour.
type ReportServiceConfig struct {
	// ExecutionTimeout bounds one executor run; 0 means no limit.
	ExecutionTimeout time.Duration
	// TerminalWriteTimeout bounds the COMPLETED/FAILED write, which runs detached from cancellation.
	TerminalWriteTimeout time.Duration
}

// ReportServiceOptions groups dependencies for ReportService.
type ReportServiceOptions struct {
	Repo     core.ReportRepository // Required: job store
	Executor core.ReportExecutor   // Required: unit of work
	Pool     Dispatcher            // Required: background execution
	Cache    *core.StatusCache     // Optional: status accelerator
	Reaper   core.ReaperRepository // Optional: required only for the reaper helpers
	Logger   *slog.Logger          // Optional: structured logger
	Metrics  statsd.Sink           // Optional: metrics sink
	Config   ReportServiceConfig
}

// ReportService owns the report job lifecycle: it is the only component that changes a job's status.
type ReportService struct {
	repo     core.ReportRepository
	reaper   core.ReaperRepository
	executor core.ReportExecutor
	pool     Dispatcher
	cache    *core.StatusCache
	logger   *slog.Logger
	metrics  statsd.Sink
	config   ReportServiceConfig

	inflight    sync.Map // int64 -> struct{}
	statusGroup singleflight.Group
}

// NewReportService constructs a new ReportService.
func NewReportService(opts ReportServiceOptions) (*ReportService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReportRepository is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("ReportExecutor is required")
	}
	if opts.Pool == nil {
		return nil, errors.New("dispatcher is required")
	}

	cfg := opts.Config
	if cfg.ExecutionTimeout < 0 {
		cfg.ExecutionTimeout = 0
	}
	if cfg.TerminalWriteTimeout <= 0 {
		cfg.TerminalWriteTimeout = defaultTerminalWriteTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "report_service")
	logger.Debug("ReportService initialized",
		"execution_timeout", cfg.ExecutionTimeout,
		"status_cache", opts.Cache.Enabled(),
	)

	return &ReportService{
		repo:     opts.Repo,
		reaper:   opts.Reaper,
		executor: opts.Executor,
		pool:     opts.Pool,
		cache:    opts.Cache,
		logger:   logger,
		metrics:  opts.Metrics,
		config:   cfg,
	}, nil
}

// MustNewReportService constructs a new ReportService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewReportService(opts ReportServiceOptions) *ReportService {
	svc, err := NewReportService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ReportService: %v", err))
	}
	return svc
}

// Create validates req and stores a new PENDING job. It never waits for execution.
func (s *ReportService) Create(ctx context.Context, req *model.CreateReportRequest) (*model.ReportJob, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, storeError("create report job", err)
	}

	s.cache.Put(ctx, job.ID, job.Status)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		ReportType: job.Type,
		Transition: metrics.TransitionCreated,
		Result:     metrics.ResultSuccess,
	})
	s.logger.DebugContext(ctx, "report job created", "report_id", job.ID, "report_type", job.Type)
	return job, nil
}

// Dispatch schedules background execution of a PENDING job and returns immediately.
// Jobs in any other status yield a Conflict; a saturated or stopped pool yields Unavailable
// and the job stays PENDING.
func (s *ReportService) Dispatch(ctx context.Context, id int64) error {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return storeError("load report job", err)
	}
	if !job.Status.CanTransitionTo(model.ReportStatusProcessing) {
		metrics.EmitDispatch(s.metrics, "conflict")
		return apperrors.Conflictf("report %d is %s and cannot be dispatched", id, job.Status)
	}
	_, err = s.submit(job)
	return err
}

// submit hands job to the pool unless an execution for it is already queued or running here.
func (s *ReportService) submit(job *model.ReportJob) (bool, error) {
	if _, loaded := s.inflight.LoadOrStore(job.ID, struct{}{}); loaded {
		metrics.EmitDispatch(s.metrics, "duplicate")
		return false, nil
	}

	req := core.ExecutionRequest{
		JobID:      job.ID,
		Name:       job.Name,
		Type:       job.Type,
		Parameters: cloneParameters(job.Parameters),
	}
	err := s.pool.Submit(func(ctx context.Context) {
		defer s.inflight.Delete(req.JobID)
		s.execute(ctx, req)
	})
	if err != nil {
		s.inflight.Delete(job.ID)
		metrics.EmitDispatch(s.metrics, "rejected")
		s.logger.Warn("report dispatch rejected", "report_id", job.ID, "error", err)
		return false, apperrors.Unavailable("report execution capacity unavailable", err)
	}

	metrics.EmitDispatch(s.metrics, metrics.ResultSuccess)
	return true, nil
}

// execute runs one job to a terminal state. ctx is the worker context and is cancelled on shutdown.
func (s *ReportService) execute(ctx context.Context, req core.ExecutionRequest) {
	logger := s.logger.With(
		"report_id", req.JobID,
		"report_type", req.Type,
		"execution_id", uuid.NewString(),
	)

	job, ok, err := s.repo.MarkProcessing(ctx, req.JobID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to mark report processing", "error", err)
		s.emit(req.Type, metrics.TransitionProcessing, metrics.ResultError, 0, err)
		return
	}
	if !ok {
		logger.DebugContext(ctx, "report already claimed by another execution")
		s.emit(req.Type, metrics.TransitionProcessing, metrics.ResultNoop, 0, nil)
		return
	}
	s.cache.Put(ctx, job.ID, job.Status)
	s.emit(req.Type, metrics.TransitionProcessing, metrics.ResultSuccess, 0, nil)
	logger.InfoContext(ctx, "report generation started")

	start := time.Now()
	location, runErr := s.run(ctx, req)
	elapsed := time.Since(start)

	// The outcome must be recorded even when ctx was cancelled mid-run.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.TerminalWriteTimeout)
	defer cancel()

	if runErr == nil {
		s.complete(writeCtx, logger, req, location, elapsed)
		return
	}
	s.fail(writeCtx, logger, req, runErr, elapsed)
}

// run invokes the executor and normalizes its outcome. The returned error, if any, is a
// *core.WorkError whose message is what gets recorded on the job.
func (s *ReportService) run(ctx context.Context, req core.ExecutionRequest) (string, error) {
	runCtx := ctx
	if s.config.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, s.config.ExecutionTimeout, errExecutionTimeout)
		defer cancel()
	}

	location, err := s.executor.Execute(runCtx, req)
	if err == nil {
		if strings.TrimSpace(location) == "" {
			return "", core.NewWorkError("report executor returned an empty result location", nil)
		}
		return location, nil
	}

	switch {
	case ctx.Err() != nil:
		return "", core.NewWorkError(MessageInterrupted, err)
	case errors.Is(context.Cause(runCtx), errExecutionTimeout):
		return "", core.NewWorkError(fmt.Sprintf("Report generation timed out after %s", s.config.ExecutionTimeout), err)
	}

	var workErr *core.WorkError
	if errors.As(err, &workErr) && strings.TrimSpace(workErr.Message) != "" {
		return "", workErr
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = messageGenericFailure
	}
	return "", core.NewWorkError(msg, err)
}

func (s *ReportService) complete(ctx context.Context, logger *slog.Logger, req core.ExecutionRequest, location string, elapsed time.Duration) {
	job, ok, err := s.repo.MarkCompleted(ctx, core.CompleteReportParams{ID: req.JobID, ResultLocation: location})
	if err != nil {
		logger.ErrorContext(ctx, "failed to record report completion", "error", err, "result_location", location)
		s.emit(req.Type, metrics.TransitionCompleted, metrics.ResultError, elapsed, err)
		return
	}
	if !ok {
		logger.WarnContext(ctx, "report left PROCESSING before completion was recorded")
		s.emit(req.Type, metrics.TransitionCompleted, metrics.ResultNoop, elapsed, nil)
		return
	}

	s.cache.Put(ctx, job.ID, job.Status)
	s.emit(req.Type, metrics.TransitionCompleted, metrics.ResultSuccess, elapsed, nil)
	logger.InfoContext(ctx, "report generation completed", "result_location", location, "duration", elapsed)
}

func (s *ReportService) fail(ctx context.Context, logger *slog.Logger, req core.ExecutionRequest, runErr error, elapsed time.Duration) {
	message := runErr.Error()
	job, ok, err := s.repo.MarkFailed(ctx, core.FailReportParams{ID: req.JobID, ErrorMessage: message})
	if err != nil {
		logger.ErrorContext(ctx, "failed to record report failure", "error", err, "cause", runErr)
		s.emit(req.Type, metrics.TransitionFailed, metrics.ResultError, elapsed, err)
		return
	}
	if !ok {
		logger.WarnContext(ctx, "report left PROCESSING before failure was recorded", "cause", runErr)
		s.emit(req.Type, metrics.TransitionFailed, metrics.ResultNoop, elapsed, nil)
		return
	}

	s.cache.Put(ctx, job.ID, job.Status)
	s.emit(req.Type, metrics.TransitionFailed, metrics.ResultError, elapsed, runErr)
	logger.WarnContext(ctx, "report generation failed", "error_message", message, "duration", elapsed)
}

func (s *ReportService) emit(reportType, transition, result string, elapsed time.Duration, err error) {
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		ReportType: reportType,
		Transition: transition,
		Result:     result,
		Duration:   elapsed,
		Err:        err,
	})
}

// GetJob returns the full job record.
func (s *ReportService) GetJob(ctx context.Context, id int64) (*model.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("get report job", err)
	}
	return job, nil
}

// GetStatus answers from the cache when possible. Misses read the store, collapsed per id,
// and seed the cache only if no transition has written it in the meantime.
func (s *ReportService) GetStatus(ctx context.Context, id int64) (model.ReportStatus, error) {
	if status, ok := s.cache.Get(ctx, id); ok {
		return status, nil
	}

	v, err, _ := s.statusGroup.Do(strconv.FormatInt(id, 10), func() (any, error) {
		job, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		s.cache.Seed(ctx, id, job.Status)
		return job.Status, nil
	})
	if err != nil {
		return "", storeError("get report status", err)
	}
	status, _ := v.(model.ReportStatus)
	return status, nil
}

// InFlight reports how many executions this process has queued or running.
func (s *ReportService) InFlight() int {
	n := 0
	s.inflight.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Stats returns per-status job counts.
func (s *ReportService) Stats(ctx context.Context) (*model.ReportStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, storeError("count report jobs", err)
	}
	return stats, nil
}

// ResumePending dispatches PENDING jobs left behind by a previous process, oldest first.
// It stops early when the pool is saturated; the remaining jobs stay PENDING.
func (s *ReportService) ResumePending(ctx context.Context) (int, error) {
	pending := model.ReportStatusPending
	jobs, err := s.repo.List(ctx, model.ReportListOptions{Status: &pending})
	if err != nil {
		return 0, storeError("list pending report jobs", err)
	}

	resumed := 0
	for i := len(jobs) - 1; i >= 0; i-- {
		submitted, err := s.submit(jobs[i])
		if err != nil {
			s.logger.WarnContext(ctx, "stopped resuming pending reports",
				"resumed", resumed,
				"remaining", i+1,
				"error", err,
			)
			break
		}
		if submitted {
			resumed++
		}
	}

	if resumed > 0 {
		s.logger.InfoContext(ctx, "resumed pending reports", "count", resumed)
	}
	return resumed, nil
}

func validationError(err error) error {
	switch {
	case errors.Is(err, model.ErrNameRequired):
		return apperrors.ValidationField("name", err.Error())
	case errors.Is(err, model.ErrTypeRequired):
		return apperrors.ValidationField("type", err.Error())
	default:
		return apperrors.Validation(err.Error())
	}
}

// storeError translates repository failures into service-level errors.
func storeError(op string, err error) error {
	if errors.Is(err, core.ErrReportNotFound) {
		return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "report not found")
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	mapped := apperrors.MapDBError(err)
	switch apperrors.GetCode(mapped) {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeConflict, apperrors.ErrCodeCanceled:
		return mapped
	case apperrors.ErrCodeNotFound:
		return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "report not found")
	}
	return apperrors.Unavailable(op+": report store unavailable", err)
}

func cloneParameters(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
