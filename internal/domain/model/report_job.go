// Package model defines the core data types used throughout the reports service.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReportStatus represents the lifecycle position of a report job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type ReportStatus string

const (
	// ReportStatusPending indicates the job was recorded but work has not started.
	ReportStatusPending ReportStatus = "PENDING"
	// ReportStatusProcessing indicates background work is running for the job.
	ReportStatusProcessing ReportStatus = "PROCESSING"
	// ReportStatusCompleted indicates the work finished and produced an artifact.
	ReportStatusCompleted ReportStatus = "COMPLETED"
	// ReportStatusFailed indicates the work failed or was interrupted.
	ReportStatusFailed ReportStatus = "FAILED"
)

// Valid returns true if the ReportStatus is one of the known lifecycle values.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusPending, ReportStatusProcessing, ReportStatusCompleted, ReportStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are allowed from s.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusCompleted || s == ReportStatusFailed
}

// CanTransitionTo reports whether moving from s to next follows the job lifecycle.
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	switch s {
	case ReportStatusPending:
		return next == ReportStatusProcessing
	case ReportStatusProcessing:
		return next == ReportStatusCompleted || next == ReportStatusFailed
	default:
		return false
	}
}

// UnmarshalText accepts status names case-insensitively (e.g. "pending", "COMPLETED").
func (s *ReportStatus) UnmarshalText(text []byte) error {
	v := ReportStatus(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid ReportStatus: %q", string(text))
	}
	*s = v
	return nil
}

// ParseReportStatus parses a status name case-insensitively.
func ParseReportStatus(raw string) (ReportStatus, error) {
	var s ReportStatus
	if err := s.UnmarshalText([]byte(raw)); err != nil {
		return "", err
	}
	return s, nil
}

// ReportJob is one request to produce a report, tracked through its lifecycle.
type ReportJob struct {
	ID             int64          `json:"id"                     yaml:"id"`
	Name           string         `json:"name"                   yaml:"name"`
	Type           string         `json:"type"                   yaml:"type"`
	Parameters     map[string]any `json:"parameters"             yaml:"parameters"`
	Status         ReportStatus   `json:"status"                 yaml:"status"`
	CreatedAt      time.Time      `json:"createdAt"              yaml:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"              yaml:"updatedAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"    yaml:"startedAt,omitempty"`
	GeneratedAt    *time.Time     `json:"generatedAt,omitempty"  yaml:"generatedAt,omitempty"`
	ResultLocation *string        `json:"resultPath,omitempty"   yaml:"resultPath,omitempty"`
	ErrorMessage   *string        `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
}

// Consistent checks that the outcome fields agree with the status.
func (j *ReportJob) Consistent() error {
	if j == nil {
		return errors.New("report job is nil")
	}
	if !j.Status.Valid() {
		return fmt.Errorf("invalid status %q", j.Status)
	}
	hasResult := j.GeneratedAt != nil && j.ResultLocation != nil
	hasPartialResult := j.GeneratedAt != nil || j.ResultLocation != nil
	hasError := j.ErrorMessage != nil

	switch j.Status {
	case ReportStatusCompleted:
		if !hasResult || hasError {
			return errors.New("completed job requires generatedAt and resultPath and no errorMessage")
		}
	case ReportStatusFailed:
		if !hasError || hasPartialResult {
			return errors.New("failed job requires errorMessage and no result")
		}
	case ReportStatusPending, ReportStatusProcessing:
		if hasPartialResult || hasError {
			return fmt.Errorf("%s job must not carry an outcome", strings.ToLower(string(j.Status)))
		}
	}
	return nil
}

// CreateReportRequest carries the fields a client supplies when requesting a report.
type CreateReportRequest struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Normalize trims whitespace and replaces nil parameters with an empty map.
func (r *CreateReportRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Type = strings.TrimSpace(r.Type)
	if r.Parameters == nil {
		r.Parameters = map[string]any{}
	}
}

// ErrNameRequired and ErrTypeRequired are returned by Validate.
var (
	ErrNameRequired = errors.New("name is required")
	ErrTypeRequired = errors.New("type is required")
)

// Validate checks required fields. Call Normalize first.
func (r *CreateReportRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(r.Type) == "" {
		return ErrTypeRequired
	}
	return nil
}

// ReportListOptions filters and pages ListJobs. Zero value lists every job.
type ReportListOptions struct {
	Status *ReportStatus
	Type   *string
	// Where is a JMESPath expression evaluated against each job's parameters.
	Where  string
	Limit  int
	Offset int
}

// ReportStatusView is the response shape of the status endpoint.
type ReportStatusView struct {
	ID     string       `json:"id"`
	Status ReportStatus `json:"status"`
}

// ReportStats counts jobs per status.
type ReportStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}
