package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/target/mmk-reports-api/internal/core"
	"github.com/target/mmk-reports-api/internal/domain/model"
	"github.com/target/mmk-reports-api/internal/service/workerpool"
)

// memReportRepo is an in-memory ReportRepository and ReaperRepository with the same guarded
// transition semantics as the Postgres repository.
type memReportRepo struct {
	mu     sync.Mutex
	now    time.Time
	nextID int64
	jobs   map[int64]*model.ReportJob

	getErr    error
	createErr error
	listErr   error

	// afterGet runs after GetByID has read a job, outside the lock.
	afterGet func()
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{
		now:  time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		jobs: map[int64]*model.ReportJob{},
	}
}

func (r *memReportRepo) tick() time.Time {
	r.now = r.now.Add(time.Second)
	return r.now
}

func copyJob(j *model.ReportJob) *model.ReportJob {
	c := *j
	c.Parameters = cloneParameters(j.Parameters)
	return &c
}

func (r *memReportRepo) Create(_ context.Context, req *model.CreateReportRequest) (*model.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	now := r.tick()
	job := &model.ReportJob{
		ID:         r.nextID,
		Name:       req.Name,
		Type:       req.Type,
		Parameters: cloneParameters(req.Parameters),
		Status:     model.ReportStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.jobs[job.ID] = job
	return copyJob(job), nil
}

// seed inserts a job directly in the given status.
func (r *memReportRepo) seed(status model.ReportStatus, params map[string]any) *model.ReportJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := r.tick()
	job := &model.ReportJob{
		ID:         r.nextID,
		Name:       "seeded",
		Type:       "sales",
		Parameters: params,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.jobs[job.ID] = job
	return copyJob(job)
}

func (r *memReportRepo) get(id int64) *model.ReportJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil
	}
	return copyJob(job)
}

func (r *memReportRepo) GetByID(_ context.Context, id int64) (*model.ReportJob, error) {
	r.mu.Lock()
	if r.getErr != nil {
		r.mu.Unlock()
		return nil, r.getErr
	}
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return nil, core.ErrReportNotFound
	}
	out := copyJob(job)
	hook := r.afterGet
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (r *memReportRepo) List(_ context.Context, opts model.ReportListOptions) ([]*model.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*model.ReportJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		if opts.Status != nil && job.Status != *opts.Status {
			continue
		}
		if opts.Type != nil && job.Type != *opts.Type {
			continue
		}
		out = append(out, copyJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, opts.Limit, opts.Offset), nil
}

func (r *memReportRepo) transition(id int64, from, to model.ReportStatus, apply func(*model.ReportJob, time.Time)) (*model.ReportJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != from || !from.CanTransitionTo(to) {
		return nil, false, nil
	}
	now := r.tick()
	job.Status = to
	job.UpdatedAt = now
	apply(job, now)
	return copyJob(job), true, nil
}

func (r *memReportRepo) MarkProcessing(_ context.Context, id int64) (*model.ReportJob, bool, error) {
	return r.transition(id, model.ReportStatusPending, model.ReportStatusProcessing, func(j *model.ReportJob, now time.Time) {
		j.StartedAt = &now
	})
}

func (r *memReportRepo) MarkCompleted(_ context.Context, p core.CompleteReportParams) (*model.ReportJob, bool, error) {
	return r.transition(p.ID, model.ReportStatusProcessing, model.ReportStatusCompleted, func(j *model.ReportJob, now time.Time) {
		loc := p.ResultLocation
		j.GeneratedAt = &now
		j.ResultLocation = &loc
	})
}

func (r *memReportRepo) MarkFailed(_ context.Context, p core.FailReportParams) (*model.ReportJob, bool, error) {
	return r.transition(p.ID, model.ReportStatusProcessing, model.ReportStatusFailed, func(j *model.ReportJob, _ time.Time) {
		msg := p.ErrorMessage
		j.ErrorMessage = &msg
	})
}

func (r *memReportRepo) Stats(_ context.Context) (*model.ReportStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &model.ReportStats{}
	for _, job := range r.jobs {
		switch job.Status {
		case model.ReportStatusPending:
			stats.Pending++
		case model.ReportStatusProcessing:
			stats.Processing++
		case model.ReportStatusCompleted:
			stats.Completed++
		case model.ReportStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (r *memReportRepo) Ping(context.Context) error { return nil }

func (r *memReportRepo) FailStaleProcessing(_ context.Context, p core.FailStaleParams) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now.Add(-p.MaxAge)
	var ids []int64
	for _, job := range r.sortedLocked() {
		if len(ids) >= p.BatchSize {
			break
		}
		if job.Status == model.ReportStatusProcessing && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			msg := p.ErrorMessage
			job.Status = model.ReportStatusFailed
			job.ErrorMessage = &msg
			job.UpdatedAt = r.now
			ids = append(ids, job.ID)
		}
	}
	return ids, nil
}

func (r *memReportRepo) ListStalePending(_ context.Context, p core.StaleQueryParams) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now.Add(-p.MaxAge)
	var ids []int64
	for _, job := range r.sortedLocked() {
		if len(ids) >= p.BatchSize {
			break
		}
		if job.Status == model.ReportStatusPending && job.CreatedAt.Before(cutoff) {
			ids = append(ids, job.ID)
		}
	}
	return ids, nil
}

func (r *memReportRepo) DeleteFinished(_ context.Context, p core.DeleteFinishedParams) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now.Add(-p.MaxAge)
	var ids []int64
	for _, job := range r.sortedLocked() {
		if len(ids) >= p.BatchSize {
			break
		}
		if job.Status == p.Status && job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, job.ID)
			ids = append(ids, job.ID)
		}
	}
	return ids, nil
}

func (r *memReportRepo) advance(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = r.now.Add(d)
}

func (r *memReportRepo) sortedLocked() []*model.ReportJob {
	out := make([]*model.ReportJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// manualPool queues tasks until the test runs them.
type manualPool struct {
	mu    sync.Mutex
	tasks []workerpool.Task
	err   error
}

func (p *manualPool) Submit(task workerpool.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *manualPool) queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

func (p *manualPool) runAll(ctx context.Context) {
	p.mu.Lock()
	tasks := p.tasks
	p.tasks = nil
	p.mu.Unlock()
	for _, task := range tasks {
		task(ctx)
	}
}

// memCache is an in-memory CacheRepository without expiry.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]byte(nil), value...)
	return nil
}

func (c *memCache) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return false, nil
	}
	c.entries[key] = append([]byte(nil), value...)
	return true, nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key], nil
}

func (c *memCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok, nil
}

func (c *memCache) Health(context.Context) error { return nil }

func (c *memCache) value(key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}
