package core

import (
	"context"
	"errors"
	"time"

	"github.com/target/mmk-reports-api/internal/domain/model"
)

// This file contains the ports between the service layer and its collaborators.
// Services depend on these interfaces; internal/data and internal/adapters implement them.

// ErrReportNotFound is returned by ReportRepository when no job has the requested id.
var ErrReportNotFound = errors.New("report job not found")

// ReportRepository is the authoritative store for report jobs.
//
// The Mark* transitions are guarded: each applies only when the job is currently in the
// expected source status and reports ok=false (with a nil error) otherwise. Every call
// changes the whole row in one statement so readers never observe a partial transition.
type ReportRepository interface {
	Create(ctx context.Context, req *model.CreateReportRequest) (*model.ReportJob, error)
	GetByID(ctx context.Context, id int64) (*model.ReportJob, error)
	List(ctx context.Context, opts model.ReportListOptions) ([]*model.ReportJob, error)
	MarkProcessing(ctx context.Context, id int64) (*model.ReportJob, bool, error)
	MarkCompleted(ctx context.Context, params CompleteReportParams) (*model.ReportJob, bool, error)
	MarkFailed(ctx context.Context, params FailReportParams) (*model.ReportJob, bool, error)
	Stats(ctx context.Context) (*model.ReportStats, error)
	Ping(ctx context.Context) error
}

// CompleteReportParams groups the outcome written by MarkCompleted.
type CompleteReportParams struct {
	ID             int64
	ResultLocation string
}

// FailReportParams groups the outcome written by MarkFailed.
type FailReportParams struct {
	ID           int64
	ErrorMessage string
}

// ReaperRepository defines batched cleanup operations over report jobs.
// Each call processes at most BatchSize rows and returns the affected ids.
type ReaperRepository interface {
	// FailStaleProcessing fails PROCESSING jobs that started before now-MaxAge.
	FailStaleProcessing(ctx context.Context, params FailStaleParams) ([]int64, error)
	// ListStalePending returns ids of PENDING jobs created before now-MaxAge.
	ListStalePending(ctx context.Context, params StaleQueryParams) ([]int64, error)
	// DeleteFinished deletes jobs in a terminal status last updated before now-MaxAge.
	DeleteFinished(ctx context.Context, params DeleteFinishedParams) ([]int64, error)
}

// StaleQueryParams selects jobs older than MaxAge, BatchSize at a time.
type StaleQueryParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// FailStaleParams groups parameters for FailStaleProcessing.
type FailStaleParams struct {
	MaxAge       time.Duration
	BatchSize    int
	ErrorMessage string
}

// DeleteFinishedParams groups parameters for DeleteFinished.
type DeleteFinishedParams struct {
	Status    model.ReportStatus
	MaxAge    time.Duration
	BatchSize int
}

// ExecutionRequest is the input handed to a ReportExecutor.
type ExecutionRequest struct {
	JobID      int64
	Name       string
	Type       string
	Parameters map[string]any
}

// ReportExecutor performs the unit of work for one job and yields where the result lives.
// Implementations must return promptly once ctx is cancelled.
type ReportExecutor interface {
	Execute(ctx context.Context, req ExecutionRequest) (string, error)
}

// ReportExecutorFunc adapts a function to ReportExecutor.
type ReportExecutorFunc func(ctx context.Context, req ExecutionRequest) (string, error)

// Execute calls f.
func (f ReportExecutorFunc) Execute(ctx context.Context, req ExecutionRequest) (string, error) {
	return f(ctx, req)
}

// PutArtifactParams groups parameters for ArtifactStore.Put.
type PutArtifactParams struct {
	Key         string
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// ArtifactStore persists rendered report artifacts and returns their location.
type ArtifactStore interface {
	Put(ctx context.Context, params PutArtifactParams) (string, error)
}

// WorkError is a failure reported by the unit of work. Its message is recorded on the job verbatim.
type WorkError struct {
	Message string
	Cause   error
}

// NewWorkError wraps cause with the message that will be stored on the failed job.
func NewWorkError(message string, cause error) *WorkError {
	return &WorkError{Message: message, Cause: cause}
}

func (e *WorkError) Error() string {
	return e.Message
}

func (e *WorkError) Unwrap() error {
	return e.Cause
}
