package reportexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/target/mmk-reports-api/internal/core"
)

// DocumentContentType is the media type of rendered report documents.
const DocumentContentType = "application/json"

// Document is the JSON body written for each generated report.
type Document struct {
	ReportID    int64          `json:"reportId"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Parameters  map[string]any `json:"parameters"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// ObjectStoreExecutor renders a report document and uploads it to an ArtifactStore.
type ObjectStoreExecutor struct {
	store  core.ArtifactStore
	prefix string
	now    func() time.Time
}

var _ core.ReportExecutor = (*ObjectStoreExecutor)(nil)

// ObjectStoreExecutorOptions groups dependencies for ObjectStoreExecutor.
type ObjectStoreExecutorOptions struct {
	Store  core.ArtifactStore // Required: destination of rendered documents
	Prefix string             // Optional: key prefix, e.g. "reports/generated"
	Now    func() time.Time   // Optional: clock, defaults to time.Now
}

// NewObjectStoreExecutor constructs an ObjectStoreExecutor.
func NewObjectStoreExecutor(opts ObjectStoreExecutorOptions) (*ObjectStoreExecutor, error) {
	if opts.Store == nil {
		return nil, errors.New("artifact store is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ObjectStoreExecutor{
		store:  opts.Store,
		prefix: strings.Trim(strings.TrimSpace(opts.Prefix), "/"),
		now:    now,
	}, nil
}

// Key returns the object key for job id.
func (e *ObjectStoreExecutor) Key(id int64) string {
	name := strconv.FormatInt(id, 10) + ".json"
	if e.prefix == "" {
		return name
	}
	return path.Join(e.prefix, name)
}

// Execute renders the document and stores it, returning the artifact location.
func (e *ObjectStoreExecutor) Execute(ctx context.Context, req core.ExecutionRequest) (string, error) {
	params := req.Parameters
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(Document{
		ReportID:    req.JobID,
		Name:        req.Name,
		Type:        req.Type,
		Parameters:  params,
		GeneratedAt: e.now().UTC(),
	})
	if err != nil {
		return "", core.NewWorkError("Report parameters could not be rendered", err)
	}

	location, err := e.store.Put(ctx, core.PutArtifactParams{
		Key:         e.Key(req.JobID),
		Body:        body,
		ContentType: DocumentContentType,
		Metadata: map[string]string{
			"report-id":   strconv.FormatInt(req.JobID, 10),
			"report-type": req.Type,
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", core.NewWorkError(fmt.Sprintf("Report artifact upload failed: %v", err), err)
	}
	return location, nil
}
