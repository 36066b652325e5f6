package httpx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-reports-api/internal/observability/metrics"
)

type timingRecord struct {
	name string
	tags map[string]string
}

type timingSink struct {
	mu      sync.Mutex
	timings []timingRecord
}

func (s *timingSink) Count(string, int64, map[string]string)   {}
func (s *timingSink) Gauge(string, float64, map[string]string) {}
func (s *timingSink) Timing(name string, _ time.Duration, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timings = append(s.timings, timingRecord{name: name, tags: tags})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Len(t, seen, 36, "oversized ids are replaced")

	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestLogging_RecordsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestID()(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	out := buf.String()
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"path":"/x"`)
	assert.Contains(t, out, `"request_id":"`)
}

func TestRecover(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	sink := &timingSink{}
	h := newTestRouter(&stubReportService{}, func(rs *RouterServices) { rs.Metrics = sink })

	do(t, h, http.MethodGet, "/api/reports/42", "")
	do(t, h, http.MethodGet, "/nope", "")

	require.Len(t, sink.timings, 2)
	assert.Equal(t, metrics.MetricHTTPRequest, sink.timings[0].name)
	assert.Equal(t, "GET /api/reports/{id}", sink.timings[0].tags["route"])
	assert.Equal(t, "404", sink.timings[0].tags["status"])
	assert.Equal(t, "unmatched", sink.timings[1].tags["route"])
}

func TestMaxBodyBytes_Disabled(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	h := MaxBodyBytes(0)(next)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("data")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(&stubReportService{})

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, healthResponse, rec.Body.String())

	rec = do(t, h, http.MethodHead, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	ok := HealthCheckFunc(func(context.Context) error { return nil })
	down := HealthCheckFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		store      HealthChecker
		cache      HealthChecker
		wantCode   int
		wantStatus string
	}{
		{"all healthy", ok, ok, http.StatusOK, `"status":"ok"`},
		{"cache disabled", ok, nil, http.StatusOK, `"status":"ok"`},
		{"cache down degrades", ok, down, http.StatusOK, `"status":"degraded"`},
		{"store down", down, ok, http.StatusServiceUnavailable, `"status":"unavailable"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&stubReportService{}, func(rs *RouterServices) {
				rs.Readiness = &ReadinessHandler{Store: tt.store, Cache: tt.cache}
			})
			rec := do(t, h, http.MethodGet, "/readyz", "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantStatus)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(&stubReportService{}, func(rs *RouterServices) {
		rs.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})
	})
	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())

	rec = do(t, newTestRouter(&stubReportService{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
