package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/mmk-reports-api/internal/core"
	"github.com/target/mmk-reports-api/internal/data/pgxutil"
	"github.com/target/mmk-reports-api/internal/domain/model"
)

// RepoConfig holds configuration options for the report repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// ReportRepo provides Postgres persistence for report jobs.
type ReportRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.ReportRepository = (*ReportRepo)(nil)

// NewReportRepo creates a new ReportRepo with the given database connection and configuration.
func NewReportRepo(db *sql.DB, cfg RepoConfig) *ReportRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "report_repo"),
	}
}

const reportColumns = `
  id,
  name,
  type,
  parameters,
  status,
  created_at,
  updated_at,
  started_at,
  generated_at,
  result_location,
  error_message
`

// Create inserts a PENDING job and returns it with its store-assigned id.
func (r *ReportRepo) Create(ctx context.Context, req *model.CreateReportRequest) (*model.ReportJob, error) {
	if req == nil {
		return nil, errors.New("create report request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}

	now := r.timeProvider.Now()
	var job *model.ReportJob
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			INSERT INTO report_jobs (name, type, parameters, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			RETURNING `+reportColumns,
			req.Name, req.Type, params, string(model.ReportStatusPending), now,
		)
		if qerr != nil {
			return qerr
		}
		job, qerr = pgx.CollectOneRow(rows, scanReport)
		return qerr
	})
	if err != nil {
		return nil, fmt.Errorf("insert report job: %w", err)
	}
	return job, nil
}

// GetByID retrieves a job by id. Returns ErrReportNotFound when absent.
func (r *ReportRepo) GetByID(ctx context.Context, id int64) (*model.ReportJob, error) {
	if id <= 0 {
		return nil, ErrReportNotFound
	}

	var job *model.ReportJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `SELECT `+reportColumns+` FROM report_jobs WHERE id = $1`, id)
		if qerr != nil {
			return qerr
		}
		job, qerr = pgx.CollectOneRow(rows, scanReport)
		return qerr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report job: %w", err)
	}
	return job, nil
}

// MarkProcessing moves a PENDING job to PROCESSING. ok is false when the job is absent
// or no longer PENDING, which means another execution already claimed it.
func (r *ReportRepo) MarkProcessing(ctx context.Context, id int64) (*model.ReportJob, bool, error) {
	now := r.timeProvider.Now()
	return r.transition(ctx, "mark processing", `
		UPDATE report_jobs
		SET status = 'PROCESSING',
		    started_at = $2,
		    updated_at = $2
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+reportColumns,
		id, now,
	)
}

// MarkCompleted moves a PROCESSING job to COMPLETED, writing the outcome in the same statement.
func (r *ReportRepo) MarkCompleted(ctx context.Context, params core.CompleteReportParams) (*model.ReportJob, bool, error) {
	if params.ResultLocation == "" {
		return nil, false, errors.New("result location is required")
	}
	now := r.timeProvider.Now()
	return r.transition(ctx, "mark completed", `
		UPDATE report_jobs
		SET status = 'COMPLETED',
		    generated_at = $2,
		    result_location = $3,
		    error_message = NULL,
		    updated_at = $2
		WHERE id = $1 AND status = 'PROCESSING'
		RETURNING `+reportColumns,
		params.ID, now, params.ResultLocation,
	)
}

// MarkFailed moves a PROCESSING job to FAILED with the given message.
func (r *ReportRepo) MarkFailed(ctx context.Context, params core.FailReportParams) (*model.ReportJob, bool, error) {
	if params.ErrorMessage == "" {
		return nil, false, errors.New("error message is required")
	}
	now := r.timeProvider.Now()
	return r.transition(ctx, "mark failed", `
		UPDATE report_jobs
		SET status = 'FAILED',
		    error_message = $2,
		    generated_at = NULL,
		    result_location = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'PROCESSING'
		RETURNING `+reportColumns,
		params.ID, params.ErrorMessage, now,
	)
}

func (r *ReportRepo) transition(ctx context.Context, op, query string, args ...any) (*model.ReportJob, bool, error) {
	job, err := scanReportRow(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return job, true, nil
}

// Stats counts jobs per status.
func (r *ReportRepo) Stats(ctx context.Context) (*model.ReportStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM report_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("report stats: %w", err)
	}
	defer rows.Close()

	stats := &model.ReportStats{}
	for rows.Next() {
		var (
			status model.ReportStatus
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan report stats: %w", err)
		}
		switch status {
		case model.ReportStatusPending:
			stats.Pending = count
		case model.ReportStatusProcessing:
			stats.Processing = count
		case model.ReportStatusCompleted:
			stats.Completed = count
		case model.ReportStatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report stats: %w", err)
	}
	return stats, nil
}

// Ping verifies the database is reachable.
func (r *ReportRepo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

type reportRowScanner interface {
	Scan(dest ...any) error
}

type reportRowData struct {
	parameters                   []byte
	startedAt, generatedAt       sql.NullTime
	resultLocation, errorMessage sql.NullString
}

func (d *reportRowData) scanInto(scanner reportRowScanner, job *model.ReportJob) error {
	return scanner.Scan(
		&job.ID,
		&job.Name,
		&job.Type,
		&d.parameters,
		&job.Status,
		&job.CreatedAt,
		&job.UpdatedAt,
		&d.startedAt,
		&d.generatedAt,
		&d.resultLocation,
		&d.errorMessage,
	)
}

func (d *reportRowData) apply(job *model.ReportJob) error {
	job.Parameters = map[string]any{}
	if len(d.parameters) > 0 {
		if err := json.Unmarshal(d.parameters, &job.Parameters); err != nil {
			return fmt.Errorf("decode parameters: %w", err)
		}
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.GeneratedAt = cloneNullableTime(d.generatedAt)
	job.ResultLocation = cloneNullableString(d.resultLocation)
	job.ErrorMessage = cloneNullableString(d.errorMessage)
	return nil
}

func scanReportRow(scanner reportRowScanner) (*model.ReportJob, error) {
	job := &model.ReportJob{}
	var d reportRowData
	if err := d.scanInto(scanner, job); err != nil {
		return nil, err
	}
	if err := d.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

func scanReport(row pgx.CollectableRow) (*model.ReportJob, error) {
	return scanReportRow(row)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
