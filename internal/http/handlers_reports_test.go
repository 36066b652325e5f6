package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-reports-api/internal/domain/model"
	apperrors "github.com/target/mmk-reports-api/internal/errors"
	"github.com/target/mmk-reports-api/internal/service/workerpool"
	"golang.org/x/time/rate"
)

type stubReportService struct {
	mu sync.Mutex

	createFn   func(*model.CreateReportRequest) (*model.ReportJob, error)
	dispatchFn func(int64) error
	jobs       map[int64]*model.ReportJob
	statusErr  error
	listFn     func(model.ReportListOptions) ([]*model.ReportJob, error)

	dispatched []int64
	lastList   model.ReportListOptions
}

func (s *stubReportService) Create(_ context.Context, req *model.CreateReportRequest) (*model.ReportJob, error) {
	if s.createFn != nil {
		return s.createFn(req)
	}
	return &model.ReportJob{
		ID:         1,
		Name:       req.Name,
		Type:       req.Type,
		Parameters: req.Parameters,
		Status:     model.ReportStatusPending,
		CreatedAt:  time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubReportService) Dispatch(_ context.Context, id int64) error {
	s.mu.Lock()
	s.dispatched = append(s.dispatched, id)
	s.mu.Unlock()
	if s.dispatchFn != nil {
		return s.dispatchFn(id)
	}
	return nil
}

func (s *stubReportService) GetJob(_ context.Context, id int64) (*model.ReportJob, error) {
	if job, ok := s.jobs[id]; ok {
		return job, nil
	}
	return nil, apperrors.NotFound("report not found")
}

func (s *stubReportService) GetStatus(_ context.Context, id int64) (model.ReportStatus, error) {
	if s.statusErr != nil {
		return "", s.statusErr
	}
	if job, ok := s.jobs[id]; ok {
		return job.Status, nil
	}
	return "", apperrors.NotFound("report not found")
}

func (s *stubReportService) ListJobs(_ context.Context, opts model.ReportListOptions) ([]*model.ReportJob, error) {
	s.lastList = opts
	if s.listFn != nil {
		return s.listFn(opts)
	}
	return nil, nil
}

func newTestRouter(svc ReportService, opts ...func(*RouterServices)) http.Handler {
	rs := RouterServices{Reports: svc, MaxBodyBytes: 1 << 10}
	for _, fn := range opts {
		fn(&rs)
	}
	return NewRouter(rs)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestCreateReport(t *testing.T) {
	t.Run("creates and dispatches", func(t *testing.T) {
		svc := &stubReportService{}
		rec := do(t, newTestRouter(svc), http.MethodPost, "/api/reports",
			`{"name":"Q1 sales","type":"sales","parameters":{"region":"us"}}`)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var job model.ReportJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, int64(1), job.ID)
		assert.Equal(t, model.ReportStatusPending, job.Status)
		assert.Equal(t, "us", job.Parameters["region"])
		assert.Equal(t, []int64{1}, svc.dispatched)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	})

	t.Run("legacy generate route responds 200", func(t *testing.T) {
		svc := &stubReportService{}
		rec := do(t, newTestRouter(svc), http.MethodPost, "/api/reports/generate", `{"name":"a","type":"b"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int64{1}, svc.dispatched)
	})

	t.Run("dispatch failure still returns the pending job", func(t *testing.T) {
		svc := &stubReportService{dispatchFn: func(int64) error {
			return apperrors.Unavailable("report execution capacity unavailable", workerpool.ErrQueueFull)
		}}
		rec := do(t, newTestRouter(svc), http.MethodPost, "/api/reports", `{"name":"a","type":"b"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"empty body", "", http.StatusBadRequest, "invalid_json"},
		{"malformed json", `{"name":`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", `{"name":"a","type":"b","extra":1}`, http.StatusBadRequest, "invalid_json"},
		{"trailing data", `{"name":"a","type":"b"} {}`, http.StatusBadRequest, "invalid_json"},
		{"too large", `{"name":"` + strings.Repeat("x", 2<<10) + `","type":"b"}`, http.StatusRequestEntityTooLarge, "request_too_large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubReportService{}
			rec := do(t, newTestRouter(svc), http.MethodPost, "/api/reports", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Error)
			assert.Empty(t, svc.dispatched)
		})
	}

	t.Run("validation error names the field", func(t *testing.T) {
		svc := &stubReportService{createFn: func(*model.CreateReportRequest) (*model.ReportJob, error) {
			return nil, apperrors.ValidationField("name", "name is required")
		}}
		rec := do(t, newTestRouter(svc), http.MethodPost, "/api/reports", `{"type":"b"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, ErrCodeInvalidRequest, body.Error)
		assert.Equal(t, "name", body.Field)
		assert.Equal(t, "name is required", body.Message)
	})

	t.Run("store outage is 503", func(t *testing.T) {
		svc := &stubReportService{createFn: func(*model.CreateReportRequest) (*model.ReportJob, error) {
			return nil, apperrors.Unavailable("create report job: report store unavailable", errors.New("dial tcp 10.0.0.1:5432"))
		}}
		rec := do(t, newTestRouter(svc), http.MethodPost, "/api/reports", `{"name":"a","type":"b"}`)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, ErrCodeStoreUnavailable, body.Error)
		assert.NotContains(t, body.Message, "10.0.0.1")
	})

	t.Run("rate limited", func(t *testing.T) {
		svc := &stubReportService{}
		h := newTestRouter(svc, func(rs *RouterServices) {
			rs.CreateLimiter = rate.NewLimiter(rate.Every(time.Hour), 1)
		})
		assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/reports", `{"name":"a","type":"b"}`).Code)

		rec := do(t, h, http.MethodPost, "/api/reports", `{"name":"a","type":"b"}`)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, ErrCodeRateLimited, decodeError(t, rec).Error)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})
}

func TestGetReport(t *testing.T) {
	path := "s3://bucket/reports/7.json"
	svc := &stubReportService{jobs: map[int64]*model.ReportJob{
		7: {ID: 7, Name: "n", Type: "t", Status: model.ReportStatusCompleted, ResultLocation: &path},
	}}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodGet, "/api/reports/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"resultPath":"s3://bucket/reports/7.json"`)

	rec = do(t, h, http.MethodGet, "/api/reports/8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeReportNotFound, decodeError(t, rec).Error)

	for _, bad := range []string{"abc", "0", "-3", "99999999999999999999"} {
		rec = do(t, h, http.MethodGet, "/api/reports/"+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Equal(t, ErrCodeInvalidID, decodeError(t, rec).Error, bad)
	}
}

func TestGetReportStatus(t *testing.T) {
	svc := &stubReportService{jobs: map[int64]*model.ReportJob{
		3: {ID: 3, Status: model.ReportStatusProcessing},
	}}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodGet, "/api/reports/3/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"3","status":"PROCESSING"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/reports/4/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.statusErr = errors.New("unexpected")
	rec = do(t, h, http.MethodGet, "/api/reports/3/status", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternal, decodeError(t, rec).Error)
}

func TestListReports(t *testing.T) {
	t.Run("passes filters through", func(t *testing.T) {
		svc := &stubReportService{listFn: func(model.ReportListOptions) ([]*model.ReportJob, error) {
			return []*model.ReportJob{
				{ID: 2, Status: model.ReportStatusFailed},
				{ID: 1, Status: model.ReportStatusPending},
			}, nil
		}}
		rec := do(t, newTestRouter(svc), http.MethodGet,
			"/api/reports?status=failed&type=sales&limit=10&offset=5&where=region%20%3D%3D%20'us'", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var jobs []model.ReportJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
		require.Len(t, jobs, 2)
		assert.Equal(t, model.ReportStatusFailed, jobs[0].Status)
		assert.Equal(t, model.ReportStatusPending, jobs[1].Status)

		require.NotNil(t, svc.lastList.Status)
		assert.Equal(t, model.ReportStatusFailed, *svc.lastList.Status)
		require.NotNil(t, svc.lastList.Type)
		assert.Equal(t, "sales", *svc.lastList.Type)
		assert.Equal(t, 10, svc.lastList.Limit)
		assert.Equal(t, 5, svc.lastList.Offset)
		assert.Equal(t, "region == 'us'", svc.lastList.Where)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		rec := do(t, newTestRouter(&stubReportService{}), http.MethodGet, "/api/reports", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	for _, q := range []string{"status=DONE", "limit=x", "limit=-1", "offset=1.5"} {
		t.Run("rejects "+q, func(t *testing.T) {
			rec := do(t, newTestRouter(&stubReportService{}), http.MethodGet, "/api/reports?"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, ErrCodeInvalidRequest, body.Error)
			assert.NotEmpty(t, body.Field)
		})
	}

	t.Run("invalid where from service", func(t *testing.T) {
		svc := &stubReportService{listFn: func(model.ReportListOptions) ([]*model.ReportJob, error) {
			return nil, apperrors.ValidationField("where", "invalid JMESPath expression")
		}}
		rec := do(t, newTestRouter(svc), http.MethodGet, "/api/reports?where=%3D%3D", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "where", decodeError(t, rec).Field)
	})
}

func TestDispatchReport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"accepted", nil, http.StatusAccepted, ""},
		{"conflict", apperrors.Conflict("report 5 is COMPLETED and cannot be dispatched"), http.StatusConflict, ErrCodeNotDispatchable},
		{"not found", apperrors.NotFound("report not found"), http.StatusNotFound, ErrCodeReportNotFound},
		{"queue full", apperrors.Unavailable("report execution capacity unavailable", workerpool.ErrQueueFull), http.StatusServiceUnavailable, ErrCodeDispatchUnavailable},
		{"store down", apperrors.Unavailable("load report job: report store unavailable", errors.New("eof")), http.StatusServiceUnavailable, ErrCodeStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubReportService{dispatchFn: func(int64) error { return tt.err }}
			rec := do(t, newTestRouter(svc), http.MethodPost, "/api/reports/5/dispatch", "")
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr == "" {
				assert.JSONEq(t, `{"id":"5","status":"PENDING"}`, rec.Body.String())
				return
			}
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Error)
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	rec := do(t, newTestRouter(&stubReportService{}), http.MethodDelete, "/api/reports/1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
