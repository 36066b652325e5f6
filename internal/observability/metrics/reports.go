package metrics

import (
	"time"

	obserrors "github.com/target/mmk-reports-api/internal/observability/errors"
	"github.com/target/mmk-reports-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Job lifecycle transitions.
const (
	TransitionCreated    = "created"
	TransitionProcessing = "processing"
	TransitionCompleted  = "completed"
	TransitionFailed     = "failed"
)

// Metric names shared by the statsd and Prometheus sinks.
const (
	MetricJobTransition = "report.transition"
	MetricJobDuration   = "report.duration"
	MetricDispatch      = "report.dispatch"
	MetricReaperJobs    = "reaper.jobs"
	MetricPoolQueued    = "workerpool.queued"
	MetricPoolActive    = "workerpool.active"
	MetricHTTPRequest   = "http.request"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	ReportType string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits a transition counter and, when Duration is set, a timing.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"report_type": in.ReportType,
		"transition":  in.Transition,
		"result":      in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(MetricJobTransition, 1, tags)
	if in.Duration > 0 {
		sink.Timing(MetricJobDuration, in.Duration, CloneTags(tags))
	}
}

// EmitDispatch counts dispatch attempts by outcome (success, duplicate, rejected, ...).
func EmitDispatch(sink statsd.Sink, result string) {
	if sink == nil {
		return
	}
	sink.Count(MetricDispatch, 1, map[string]string{"result": result})
}

// EmitReaper counts jobs touched by one reaper action.
func EmitReaper(sink statsd.Sink, action string, n int) {
	if sink == nil || n <= 0 {
		return
	}
	sink.Count(MetricReaperJobs, int64(n), map[string]string{"action": action})
}

// EmitPoolDepth records worker pool occupancy.
func EmitPoolDepth(sink statsd.Sink, queued int, active int64) {
	if sink == nil {
		return
	}
	sink.Gauge(MetricPoolQueued, float64(queued), nil)
	sink.Gauge(MetricPoolActive, float64(active), nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
