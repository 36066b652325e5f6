package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-reports-api/internal/observability/statsd"
)

type capturedMetric struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type captureSink struct {
	metrics []capturedMetric
}

func (c *captureSink) Count(name string, value int64, tags map[string]string) {
	c.metrics = append(c.metrics, capturedMetric{"count", name, float64(value), tags})
}

func (c *captureSink) Gauge(name string, value float64, tags map[string]string) {
	c.metrics = append(c.metrics, capturedMetric{"gauge", name, value, tags})
}

func (c *captureSink) Timing(name string, value time.Duration, tags map[string]string) {
	c.metrics = append(c.metrics, capturedMetric{"timing", name, value.Seconds(), tags})
}

func TestEmitJobLifecycle(t *testing.T) {
	sink := &captureSink{}
	EmitJobLifecycle(sink, JobMetric{
		ReportType: "sales",
		Transition: TransitionFailed,
		Result:     ResultError,
		Duration:   2 * time.Second,
		Err:        context.DeadlineExceeded,
	})

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, MetricJobTransition, sink.metrics[0].name)
	assert.Equal(t, "timeout", sink.metrics[0].tags["error_class"])
	assert.Equal(t, "sales", sink.metrics[0].tags["report_type"])
	assert.Equal(t, MetricJobDuration, sink.metrics[1].name)
	assert.InDelta(t, 2.0, sink.metrics[1].value, 0.001)
}

func TestEmitJobLifecycle_SuccessOmitsErrorClass(t *testing.T) {
	sink := &captureSink{}
	EmitJobLifecycle(sink, JobMetric{ReportType: "sales", Transition: TransitionCreated, Result: ResultSuccess})

	require.Len(t, sink.metrics, 1)
	_, ok := sink.metrics[0].tags["error_class"]
	assert.False(t, ok)
}

func TestEmitters_NilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitJobLifecycle(nil, JobMetric{})
		EmitDispatch(nil, ResultSuccess)
		EmitReaper(nil, "deleted", 3)
		EmitPoolDepth(nil, 1, 1)
	})
}

func TestEmitReaper_SkipsZero(t *testing.T) {
	sink := &captureSink{}
	EmitReaper(sink, "deleted", 0)
	assert.Empty(t, sink.metrics)
	EmitReaper(sink, "deleted", 4)
	require.Len(t, sink.metrics, 1)
	assert.InDelta(t, 4.0, sink.metrics[0].value, 0)
}

func TestPrometheusSink(t *testing.T) {
	p := NewPrometheus("reports")
	var sink statsd.Sink = p

	EmitJobLifecycle(sink, JobMetric{ReportType: "sales", Transition: TransitionCompleted, Result: ResultSuccess, Duration: time.Second})
	EmitJobLifecycle(sink, JobMetric{ReportType: "sales", Transition: TransitionCompleted, Result: ResultSuccess})
	EmitDispatch(sink, "rejected")
	EmitReaper(sink, "redispatched", 2)
	EmitPoolDepth(sink, 7, 3)
	sink.Count("unknown.metric", 1, nil)

	assert.InDelta(t, 2.0, testutil.ToFloat64(p.transitions.WithLabelValues("sales", TransitionCompleted, ResultSuccess, "")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(p.dispatches.WithLabelValues("rejected")), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(p.reaped.WithLabelValues("redispatched")), 0)
	assert.InDelta(t, 7.0, testutil.ToFloat64(p.poolQueued), 0)
	assert.InDelta(t, 3.0, testutil.ToFloat64(p.poolActive), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(p.durations))

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "reports_job_transitions_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
