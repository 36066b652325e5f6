package testutil

import (
	"github.com/target/mmk-reports-api/internal/domain/model"
)

// ReportRequestBuilder provides a fluent interface for building CreateReportRequest objects for testing.
type ReportRequestBuilder struct {
	req *model.CreateReportRequest
}

// NewReportRequest creates a builder defaulting to a quarterly sales report.
func NewReportRequest() *ReportRequestBuilder {
	return &ReportRequestBuilder{
		req: &model.CreateReportRequest{
			Name:       "Q1 Sales",
			Type:       "sales",
			Parameters: map[string]any{},
		},
	}
}

// WithName sets the report name.
func (b *ReportRequestBuilder) WithName(name string) *ReportRequestBuilder {
	b.req.Name = name
	return b
}

// WithType sets the report type.
func (b *ReportRequestBuilder) WithType(reportType string) *ReportRequestBuilder {
	b.req.Type = reportType
	return b
}

// WithParam sets one parameter.
func (b *ReportRequestBuilder) WithParam(key string, value any) *ReportRequestBuilder {
	if b.req.Parameters == nil {
		b.req.Parameters = map[string]any{}
	}
	b.req.Parameters[key] = value
	return b
}

// Build returns a copy of the built request.
func (b *ReportRequestBuilder) Build() *model.CreateReportRequest {
	params := make(map[string]any, len(b.req.Parameters))
	for k, v := range b.req.Parameters {
		params[k] = v
	}
	return &model.CreateReportRequest{Name: b.req.Name, Type: b.req.Type, Parameters: params}
}

// NewReportJob returns a job in status with consistent outcome fields, timestamped at TestTime.
func NewReportJob(id int64, status model.ReportStatus) *model.ReportJob {
	now := TestTime()
	job := &model.ReportJob{
		ID:         id,
		Name:       "Q1 Sales",
		Type:       "sales",
		Parameters: map[string]any{},
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	switch status {
	case model.ReportStatusProcessing:
		job.StartedAt = TimePtr(now)
	case model.ReportStatusCompleted:
		job.StartedAt = TimePtr(now)
		job.GeneratedAt = TimePtr(now)
		job.ResultLocation = StringPtr("/reports/generated/1.pdf")
	case model.ReportStatusFailed:
		job.StartedAt = TimePtr(now)
		job.ErrorMessage = StringPtr("disk full")
	}
	return job
}
