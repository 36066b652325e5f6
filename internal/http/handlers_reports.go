// Package httpx provides HTTP handlers and utilities for the reports API.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/target/mmk-reports-api/internal/domain/model"
	"golang.org/x/time/rate"
)

// ReportService is the subset of service.ReportService used by the handlers.
type ReportService interface {
	Create(ctx context.Context, req *model.CreateReportRequest) (*model.ReportJob, error)
	Dispatch(ctx context.Context, id int64) error
	GetJob(ctx context.Context, id int64) (*model.ReportJob, error)
	GetStatus(ctx context.Context, id int64) (model.ReportStatus, error)
	ListJobs(ctx context.Context, opts model.ReportListOptions) ([]*model.ReportJob, error)
}

// ReportHandlers provides HTTP handlers for report job operations.
type ReportHandlers struct {
	Svc    ReportService
	Logger *slog.Logger
	// CreateLimiter throttles job creation; nil disables throttling.
	CreateLimiter *rate.Limiter
}

// CreateReport records a job, dispatches it and responds 201 with the PENDING job.
func (h *ReportHandlers) CreateReport(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, http.StatusCreated)
}

// GenerateReport is the legacy creation route and responds 200.
func (h *ReportHandlers) GenerateReport(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, http.StatusOK)
}

func (h *ReportHandlers) create(w http.ResponseWriter, r *http.Request, status int) {
	if h.CreateLimiter != nil && !h.CreateLimiter.Allow() {
		w.Header().Set("Retry-After", "1")
		WriteError(w, ErrorParams{
			Code:    http.StatusTooManyRequests,
			ErrCode: ErrCodeRateLimited,
			Err:     errors.New("too many report requests, retry later"),
		})
		return
	}

	var req model.CreateReportRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}

	// A failed dispatch leaves the job PENDING for the resume and reaper paths to pick up.
	if err := h.Svc.Dispatch(r.Context(), job.ID); err != nil {
		h.logger().WarnContext(r.Context(), "report created but not dispatched",
			"report_id", job.ID,
			"error", err,
		)
	}

	WriteJSON(w, status, job)
}

// ListReports returns jobs newest first, optionally filtered by status, type and a where expression.
func (h *ReportHandlers) ListReports(w http.ResponseWriter, r *http.Request) {
	opts, ok := parseListOptions(w, r)
	if !ok {
		return
	}

	jobs, err := h.Svc.ListJobs(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}
	if jobs == nil {
		jobs = []*model.ReportJob{}
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// GetReport returns the full job record.
func (h *ReportHandlers) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := parseReportID(w, r)
	if !ok {
		return
	}

	job, err := h.Svc.GetJob(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// GetReportStatus returns {"id": "<id>", "status": "<STATUS>"}.
func (h *ReportHandlers) GetReportStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseReportID(w, r)
	if !ok {
		return
	}

	status, err := h.Svc.GetStatus(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, model.ReportStatusView{ID: strconv.FormatInt(id, 10), Status: status})
}

// DispatchReport schedules a PENDING job again and responds 202.
func (h *ReportHandlers) DispatchReport(w http.ResponseWriter, r *http.Request) {
	id, ok := parseReportID(w, r)
	if !ok {
		return
	}

	if err := h.Svc.Dispatch(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusAccepted, model.ReportStatusView{
		ID:     strconv.FormatInt(id, 10),
		Status: model.ReportStatusPending,
	})
}

func (h *ReportHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func parseReportID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: ErrCodeInvalidID,
			Err:     errors.New("report id must be a positive integer"),
			Field:   "id",
		})
		return 0, false
	}
	return id, true
}

func parseListOptions(w http.ResponseWriter, r *http.Request) (model.ReportListOptions, bool) {
	q := r.URL.Query()
	var opts model.ReportListOptions

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := model.ParseReportStatus(raw)
		if err != nil {
			writeInvalidQuery(w, "status", "status must be one of PENDING, PROCESSING, COMPLETED, FAILED")
			return opts, false
		}
		opts.Status = &status
	}
	if raw := strings.TrimSpace(q.Get("type")); raw != "" {
		opts.Type = &raw
	}
	opts.Where = strings.TrimSpace(q.Get("where"))

	var ok bool
	if opts.Limit, ok = parseNonNegativeQuery(w, r, "limit"); !ok {
		return opts, false
	}
	if opts.Offset, ok = parseNonNegativeQuery(w, r, "offset"); !ok {
		return opts, false
	}
	return opts, true
}

// parseNonNegativeQuery returns 0 when key is absent.
func parseNonNegativeQuery(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeInvalidQuery(w, key, key+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

func writeInvalidQuery(w http.ResponseWriter, field, msg string) {
	WriteError(w, ErrorParams{
		Code:    http.StatusBadRequest,
		ErrCode: ErrCodeInvalidRequest,
		Err:     errors.New(msg),
		Field:   field,
	})
}
