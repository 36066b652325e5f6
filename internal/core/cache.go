// Package core holds the ports and shared business helpers of the reports service.
package core

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/target/mmk-reports-api/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// The core defines it and the data layer provides the Redis implementation.
type CacheRepository interface {
	// Set stores a value with the given TTL. A zero TTL means the key does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores a value only when the key is absent. Returns true if the value was written.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get retrieves a value by key. Returns nil, nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key. Returns true if the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// StatusKeyPrefix prefixes every status cache key.
const StatusKeyPrefix = "report:status:"

// StatusKey returns the cache key holding the status of job id.
func StatusKey(id int64) string {
	return StatusKeyPrefix + strconv.FormatInt(id, 10)
}

// StatusCacheConfig holds configuration for status caching.
type StatusCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// DefaultStatusCacheConfig returns the default five minute TTL.
func DefaultStatusCacheConfig() StatusCacheConfig {
	return StatusCacheConfig{TTL: 5 * time.Minute}
}

// StatusCacheOptions bundles dependencies for NewStatusCache.
type StatusCacheOptions struct {
	Cache  CacheRepository // Optional: nil disables caching
	Config StatusCacheConfig
	Logger *slog.Logger
}

// StatusCache is a read-through accelerator for job status. It is never authoritative:
// every failure is logged and treated as a miss so the job store stays the source of truth.
type StatusCache struct {
	cache  CacheRepository
	ttl    time.Duration
	logger *slog.Logger
}

// NewStatusCache creates a new StatusCache.
func NewStatusCache(opts StatusCacheOptions) *StatusCache {
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = DefaultStatusCacheConfig().TTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusCache{
		cache:  opts.Cache,
		ttl:    ttl,
		logger: logger.With("component", "status_cache"),
	}
}

// Enabled reports whether a backing cache is configured.
func (s *StatusCache) Enabled() bool {
	return s != nil && s.cache != nil
}

// Get returns the cached status for id. ok is false on miss, on a malformed entry and on cache errors.
func (s *StatusCache) Get(ctx context.Context, id int64) (model.ReportStatus, bool) {
	if !s.Enabled() {
		return "", false
	}

	raw, err := s.cache.Get(ctx, StatusKey(id))
	if err != nil {
		s.logger.WarnContext(ctx, "status cache read failed", "report_id", id, "error", err)
		return "", false
	}
	if len(raw) == 0 {
		return "", false
	}

	status := model.ReportStatus(raw)
	if !status.Valid() {
		s.logger.WarnContext(ctx, "ignoring malformed status cache entry", "report_id", id, "value", string(raw))
		return "", false
	}
	return status, true
}

// Put records status for id with the configured TTL.
func (s *StatusCache) Put(ctx context.Context, id int64, status model.ReportStatus) {
	if !s.Enabled() {
		return
	}
	if err := s.cache.Set(ctx, StatusKey(id), []byte(status), s.ttl); err != nil {
		s.logger.WarnContext(ctx, "status cache write failed", "report_id", id, "status", status, "error", err)
	}
}

// Seed records status for id only when no entry exists, so a status read from the store
// never replaces one written by a later transition.
func (s *StatusCache) Seed(ctx context.Context, id int64, status model.ReportStatus) {
	if !s.Enabled() {
		return
	}
	if _, err := s.cache.SetNX(ctx, StatusKey(id), []byte(status), s.ttl); err != nil {
		s.logger.WarnContext(ctx, "status cache seed failed", "report_id", id, "status", status, "error", err)
	}
}

// Invalidate removes the cached status for id.
func (s *StatusCache) Invalidate(ctx context.Context, id int64) {
	if !s.Enabled() {
		return
	}
	if _, err := s.cache.Delete(ctx, StatusKey(id)); err != nil {
		s.logger.WarnContext(ctx, "status cache delete failed", "report_id", id, "error", err)
	}
}

// Health checks the backing cache. A disabled cache is healthy.
func (s *StatusCache) Health(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.cache.Health(ctx)
}
