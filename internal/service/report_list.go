package service

import (
	"context"
	"errors"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/mmk-reports-api/internal/core"
	"github.com/target/mmk-reports-api/internal/domain/model"
	apperrors "github.com/target/mmk-reports-api/internal/errors"
)

// ListJobs returns jobs newest first. A non-empty Where expression is evaluated against each
// job's parameters and keeps jobs for which it yields a truthy value; paging then applies
// to the filtered result.
func (s *ReportService) ListJobs(ctx context.Context, opts model.ReportListOptions) ([]*model.ReportJob, error) {
	if opts.Limit < 0 {
		return nil, apperrors.ValidationField("limit", "limit must not be negative")
	}
	if opts.Offset < 0 {
		return nil, apperrors.ValidationField("offset", "offset must not be negative")
	}
	if opts.Status != nil && !opts.Status.Valid() {
		return nil, apperrors.ValidationField("status", "unknown report status")
	}

	where := strings.TrimSpace(opts.Where)
	if where == "" {
		jobs, err := s.repo.List(ctx, opts)
		if err != nil {
			return nil, storeError("list report jobs", err)
		}
		return jobs, nil
	}

	expr, err := jmespath.Compile(where)
	if err != nil {
		return nil, apperrors.ValidationField("where", "invalid JMESPath expression: "+err.Error())
	}

	storeOpts := opts
	storeOpts.Where, storeOpts.Limit, storeOpts.Offset = "", 0, 0
	jobs, err := s.repo.List(ctx, storeOpts)
	if err != nil {
		return nil, storeError("list report jobs", err)
	}

	matched := make([]*model.ReportJob, 0, len(jobs))
	for _, job := range jobs {
		params := job.Parameters
		if params == nil {
			params = map[string]any{}
		}
		res, err := expr.Search(params)
		if err != nil {
			continue
		}
		if truthy(res) {
			matched = append(matched, job)
		}
	}
	return page(matched, opts.Limit, opts.Offset), nil
}

// truthy follows JMESPath truthiness: false, null and empty strings, arrays or objects are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func page(jobs []*model.ReportJob, limit, offset int) []*model.ReportJob {
	if offset >= len(jobs) {
		return []*model.ReportJob{}
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

var errReaperRepoMissing = errors.New("reaper repository not configured")

// FailStaleProcessing fails one batch of PROCESSING jobs that have run longer than maxAge.
func (s *ReportService) FailStaleProcessing(ctx context.Context, maxAge time.Duration, batchSize int) (int, error) {
	if s.reaper == nil {
		return 0, errReaperRepoMissing
	}
	ids, err := s.reaper.FailStaleProcessing(ctx, core.FailStaleParams{
		MaxAge:       maxAge,
		BatchSize:    batchSize,
		ErrorMessage: MessageStaleExecution,
	})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.cache.Put(ctx, id, model.ReportStatusFailed)
	}
	if len(ids) > 0 {
		s.logger.WarnContext(ctx, "failed stale processing reports", "count", len(ids), "max_age", maxAge)
	}
	return len(ids), nil
}

// RedispatchStalePending re-dispatches one batch of PENDING jobs older than maxAge.
// Jobs already queued in this process are skipped, and the batch stops when the pool is full.
func (s *ReportService) RedispatchStalePending(ctx context.Context, maxAge time.Duration, batchSize int) (int, error) {
	if s.reaper == nil {
		return 0, errReaperRepoMissing
	}
	ids, err := s.reaper.ListStalePending(ctx, core.StaleQueryParams{MaxAge: maxAge, BatchSize: batchSize})
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return dispatched, err
		}
		job, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, core.ErrReportNotFound) {
				continue
			}
			return dispatched, err
		}
		if job.Status != model.ReportStatusPending {
			continue
		}
		submitted, err := s.submit(job)
		if err != nil {
			s.logger.WarnContext(ctx, "stale pending redispatch stopped", "dispatched", dispatched, "error", err)
			break
		}
		if submitted {
			dispatched++
		}
	}
	return dispatched, nil
}

// PruneFinished deletes one batch of jobs in a terminal status last updated before maxAge ago.
func (s *ReportService) PruneFinished(ctx context.Context, status model.ReportStatus, maxAge time.Duration, batchSize int) (int, error) {
	if s.reaper == nil {
		return 0, errReaperRepoMissing
	}
	if !status.Terminal() {
		return 0, apperrors.Validationf("cannot prune %s reports", status)
	}
	ids, err := s.reaper.DeleteFinished(ctx, core.DeleteFinishedParams{
		Status:    status,
		MaxAge:    maxAge,
		BatchSize: batchSize,
	})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.cache.Invalidate(ctx, id)
	}
	return len(ids), nil
}
