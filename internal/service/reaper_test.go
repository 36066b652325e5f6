package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-reports-api/config"
	"github.com/target/mmk-reports-api/internal/domain/model"
)

// fakeMaintenance returns each queued count once, then 0, per operation.
type fakeMaintenance struct {
	mu sync.Mutex

	failCounts      []int
	redispatchCount int
	pruneCounts     map[model.ReportStatus][]int

	failErr  error
	pruneErr error

	failCalls       int
	redispatchCalls int
	pruneCalls      map[model.ReportStatus]int
	lastBatchSize   int
}

func newFakeMaintenance() *fakeMaintenance {
	return &fakeMaintenance{
		pruneCounts: map[model.ReportStatus][]int{},
		pruneCalls:  map[model.ReportStatus]int{},
	}
}

func (f *fakeMaintenance) FailStaleProcessing(_ context.Context, _ time.Duration, batchSize int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCalls++
	f.lastBatchSize = batchSize
	if f.failErr != nil {
		return 0, f.failErr
	}
	return pop(&f.failCounts), nil
}

func (f *fakeMaintenance) RedispatchStalePending(_ context.Context, _ time.Duration, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redispatchCalls++
	return f.redispatchCount, nil
}

func (f *fakeMaintenance) PruneFinished(_ context.Context, status model.ReportStatus, _ time.Duration, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneCalls[status]++
	if f.pruneErr != nil {
		return 0, f.pruneErr
	}
	counts := f.pruneCounts[status]
	n := pop(&counts)
	f.pruneCounts[status] = counts
	return n, nil
}

func pop(counts *[]int) int {
	if len(*counts) == 0 {
		return 0
	}
	n := (*counts)[0]
	*counts = (*counts)[1:]
	return n
}

type recordingSink struct {
	mu     sync.Mutex
	counts map[string]int64
	gauges map[string]float64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{counts: map[string]int64{}, gauges: map[string]float64{}}
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := name
	if op := tags["operation"]; op != "" {
		key += ":" + op + ":" + tags["result"]
	} else if action := tags["action"]; action != "" {
		key += ":" + action
	} else if result := tags["result"]; result != "" {
		key += ":" + result
	}
	r.counts[key] += value
}

func (r *recordingSink) Gauge(name string, value float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
}

func (r *recordingSink) Timing(string, time.Duration, map[string]string) {}

func (r *recordingSink) count(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:             time.Minute,
		ProcessingMaxAge:     time.Hour,
		PendingRedispatchAge: 10 * time.Minute,
		CompletedMaxAge:      7 * 24 * time.Hour,
		FailedMaxAge:         7 * 24 * time.Hour,
		BatchSize:            100,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Reports: newFakeMaintenance(),
			Config:  testReaperConfig(),
			Logger:  slog.Default(),
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when reports is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Config: testReaperConfig()})
		require.Error(t, err)
	})

	t.Run("returns error for zero interval", func(t *testing.T) {
		cfg := testReaperConfig()
		cfg.Interval = 0
		_, err := NewReaperService(ReaperServiceOptions{Reports: newFakeMaintenance(), Config: cfg})
		require.Error(t, err)
	})

	t.Run("returns error for zero batch size", func(t *testing.T) {
		cfg := testReaperConfig()
		cfg.BatchSize = 0
		_, err := NewReaperService(ReaperServiceOptions{Reports: newFakeMaintenance(), Config: cfg})
		require.Error(t, err)
	})
}

func TestReaperService_RunOnce(t *testing.T) {
	t.Run("drains batches and emits metrics", func(t *testing.T) {
		fake := newFakeMaintenance()
		fake.failCounts = []int{3, 2}
		fake.redispatchCount = 4
		fake.pruneCounts[model.ReportStatusCompleted] = []int{5}
		sink := newRecordingSink()

		svc, err := NewReaperService(ReaperServiceOptions{
			Reports: fake,
			Config:  testReaperConfig(),
			Metrics: sink,
		})
		require.NoError(t, err)

		require.NoError(t, svc.RunOnce(context.Background()))

		assert.Equal(t, 3, fake.failCalls, "two non-empty batches then an empty one")
		assert.Equal(t, 1, fake.redispatchCalls, "redispatch runs a single batch")
		assert.Equal(t, 2, fake.pruneCalls[model.ReportStatusCompleted])
		assert.Equal(t, 1, fake.pruneCalls[model.ReportStatusFailed])
		assert.Equal(t, 100, fake.lastBatchSize)

		assert.Equal(t, int64(1), sink.count("reaper.cleanup:success"))
		assert.Equal(t, int64(5), sink.count("reaper.jobs:fail_processing"))
		assert.Equal(t, int64(4), sink.count("reaper.jobs:redispatch_pending"))
		assert.Equal(t, int64(5), sink.count("reaper.jobs:delete_completed"))
		assert.Equal(t, int64(1), sink.count("reaper.cleanup_operation:delete_failed:noop"))
		assert.Contains(t, sink.gauges, "reaper.last_success_epoch")
	})

	t.Run("disabled stale steps are skipped", func(t *testing.T) {
		fake := newFakeMaintenance()
		cfg := testReaperConfig()
		cfg.ProcessingMaxAge = 0
		cfg.PendingRedispatchAge = 0

		svc, err := NewReaperService(ReaperServiceOptions{Reports: fake, Config: cfg})
		require.NoError(t, err)
		require.NoError(t, svc.RunOnce(context.Background()))

		assert.Zero(t, fake.failCalls)
		assert.Zero(t, fake.redispatchCalls)
		assert.Equal(t, 1, fake.pruneCalls[model.ReportStatusCompleted])
		assert.Equal(t, 1, fake.pruneCalls[model.ReportStatusFailed])
	})

	t.Run("a failing step does not stop the others", func(t *testing.T) {
		fake := newFakeMaintenance()
		fake.failErr = errors.New("database down")
		sink := newRecordingSink()

		svc, err := NewReaperService(ReaperServiceOptions{Reports: fake, Config: testReaperConfig(), Metrics: sink})
		require.NoError(t, err)

		err = svc.RunOnce(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fail stale processing reports")
		assert.Equal(t, 1, fake.redispatchCalls)
		assert.Equal(t, 1, fake.pruneCalls[model.ReportStatusFailed])
		assert.Equal(t, int64(1), sink.count("reaper.cleanup:error"))
		assert.NotContains(t, sink.gauges, "reaper.last_success_epoch")
	})

	t.Run("context cancellation is reported as canceled", func(t *testing.T) {
		fake := newFakeMaintenance()
		fake.failErr = context.Canceled
		fake.pruneErr = context.Canceled
		cfg := testReaperConfig()
		cfg.PendingRedispatchAge = 0

		svc, err := NewReaperService(ReaperServiceOptions{Reports: fake, Config: cfg})
		require.NoError(t, err)

		err = svc.RunOnce(context.Background())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops gracefully on cancellation", func(t *testing.T) {
		fake := newFakeMaintenance()
		cfg := testReaperConfig()
		cfg.Interval = 50 * time.Millisecond

		svc, err := NewReaperService(ReaperServiceOptions{Reports: fake, Config: cfg, Logger: slog.Default()})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		require.Eventually(t, func() bool {
			fake.mu.Lock()
			defer fake.mu.Unlock()
			return fake.pruneCalls[model.ReportStatusFailed] >= 2
		}, 2*time.Second, 10*time.Millisecond, "initial cleanup plus at least one tick")

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("reaper did not stop")
		}
	})

	t.Run("deadline is returned as an error", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{Reports: newFakeMaintenance(), Config: testReaperConfig()})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, svc.Run(ctx), context.DeadlineExceeded)
	})
}
