package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/target/mmk-reports-api/internal/observability/statsd"
)

// Prometheus is a statsd.Sink that maps the known metric names onto Prometheus collectors
// in its own registry. Unknown names are ignored.
type Prometheus struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	dispatches  *prometheus.CounterVec
	reaped      *prometheus.CounterVec
	poolQueued  prometheus.Gauge
	poolActive  prometheus.Gauge
	httpLatency *prometheus.HistogramVec
}

var _ statsd.Sink = (*Prometheus)(nil)

var (
	transitionLabels = []string{"report_type", "transition", "result", "error_class"}
	durationLabels   = []string{"report_type", "transition", "result"}
	httpLabels       = []string{"method", "route", "status"}
)

// NewPrometheus builds the sink with process and Go runtime collectors registered alongside.
func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Report job lifecycle transitions.",
		}, transitionLabels),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from start of processing to terminal state.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, durationLabels),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Dispatch attempts by outcome.",
		}, []string{"result"}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_jobs_total",
			Help:      "Jobs failed, redispatched or deleted by the reaper.",
		}, []string{"action"}),
		poolQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workerpool_queued",
			Help:      "Executions waiting for a worker.",
		}),
		poolActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workerpool_active",
			Help:      "Executions currently running.",
		}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, httpLabels),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.transitions,
		p.durations,
		p.dispatches,
		p.reaped,
		p.poolQueued,
		p.poolActive,
		p.httpLatency,
	)
	return p
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) Count(name string, value int64, tags map[string]string) {
	switch name {
	case MetricJobTransition:
		p.transitions.With(labels(transitionLabels, tags)).Add(float64(value))
	case MetricDispatch:
		p.dispatches.With(labels([]string{"result"}, tags)).Add(float64(value))
	case MetricReaperJobs:
		p.reaped.With(labels([]string{"action"}, tags)).Add(float64(value))
	}
}

func (p *Prometheus) Gauge(name string, value float64, _ map[string]string) {
	switch name {
	case MetricPoolQueued:
		p.poolQueued.Set(value)
	case MetricPoolActive:
		p.poolActive.Set(value)
	}
}

func (p *Prometheus) Timing(name string, value time.Duration, tags map[string]string) {
	switch name {
	case MetricJobDuration:
		p.durations.With(labels(durationLabels, tags)).Observe(value.Seconds())
	case MetricHTTPRequest:
		p.httpLatency.With(labels(httpLabels, tags)).Observe(value.Seconds())
	}
}

// labels projects tags onto a fixed label set; missing keys become empty values.
func labels(names []string, tags map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(names))
	for _, n := range names {
		out[n] = tags[n]
	}
	return out
}
