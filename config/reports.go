package config

import (
	"strings"
	"time"
)

// ExecutorKind selects the unit of work run for each report.
type ExecutorKind string

const (
	// ExecutorSimulated sleeps and returns a synthetic PDF path.
	ExecutorSimulated ExecutorKind = "simulated"
	// ExecutorS3 renders a JSON document and stores it in S3.
	ExecutorS3 ExecutorKind = "s3"
)

// ReportsConfig controls report execution.
type ReportsConfig struct {
	Executor ExecutorKind `env:"REPORTS_EXECUTOR" envDefault:"simulated"`

	// SimulatedDelay is how long the simulated executor takes per report.
	SimulatedDelay time.Duration `env:"REPORTS_SIMULATED_DELAY" envDefault:"5s"`

	// ArtifactPrefix is the object key prefix used by the s3 executor.
	ArtifactPrefix string `env:"REPORTS_ARTIFACT_PREFIX" envDefault:"reports/generated"`

	// ExecutionTimeout bounds a single execution; 0 means no limit.
	ExecutionTimeout time.Duration `env:"REPORTS_EXECUTION_TIMEOUT" envDefault:"0"`

	// StatusCacheTTL is the lifetime of cached status entries.
	StatusCacheTTL time.Duration `env:"REPORTS_STATUS_CACHE_TTL" envDefault:"5m"`

	// ResumePendingOnStart dispatches PENDING jobs left over from a previous process.
	ResumePendingOnStart bool `env:"REPORTS_RESUME_PENDING_ON_START" envDefault:"true"`

	Workers   int `env:"REPORTS_WORKERS"    envDefault:"4"`
	QueueSize int `env:"REPORTS_QUEUE_SIZE" envDefault:"128"`
}

// Sanitize applies guardrails to report execution settings.
func (r *ReportsConfig) Sanitize() {
	r.Executor = ExecutorKind(strings.ToLower(strings.TrimSpace(string(r.Executor))))
	if r.Executor != ExecutorS3 {
		r.Executor = ExecutorSimulated
	}
	if r.SimulatedDelay < 0 {
		r.SimulatedDelay = 0
	}
	r.ArtifactPrefix = strings.Trim(strings.TrimSpace(r.ArtifactPrefix), "/")
	if r.ExecutionTimeout < 0 {
		r.ExecutionTimeout = 0
	}
	if r.StatusCacheTTL <= 0 {
		r.StatusCacheTTL = 5 * time.Minute
	}
	if r.Workers < 1 {
		r.Workers = 1
	}
	if r.Workers > 256 {
		r.Workers = 256
	}
	if r.QueueSize < 1 {
		r.QueueSize = 1
	}
}

// S3Config configures the artifact bucket used by the s3 executor.
type S3Config struct {
	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION"`
	Endpoint        string `env:"ENDPOINT"`
	Profile         string `env:"PROFILE"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	ForcePathStyle  bool   `env:"FORCE_PATH_STYLE" envDefault:"false"`
}

// Sanitize trims whitespace from S3 settings.
func (s *S3Config) Sanitize() {
	s.Bucket = strings.TrimSpace(s.Bucket)
	s.Region = strings.TrimSpace(s.Region)
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.Profile = strings.TrimSpace(s.Profile)
}
