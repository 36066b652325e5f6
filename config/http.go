package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT"       envDefault:"30s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT"        envDefault:"120s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"15s"`

	// MaxConnections caps concurrently accepted connections; 0 means unlimited.
	MaxConnections int `env:"HTTP_MAX_CONNECTIONS" envDefault:"0"`

	// CreateRateLimit is the sustained report-creation rate in requests per second; 0 disables limiting.
	CreateRateLimit float64 `env:"HTTP_CREATE_RATE_LIMIT" envDefault:"0"`
	// CreateRateBurst is the token bucket size for report creation.
	CreateRateBurst int `env:"HTTP_CREATE_RATE_BURST" envDefault:"20"`

	// MaxBodyBytes bounds JSON request bodies.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 10 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 15 * time.Second
	}
	if h.MaxConnections < 0 {
		h.MaxConnections = 0
	}
	if h.CreateRateLimit < 0 {
		h.CreateRateLimit = 0
	}
	if h.CreateRateLimit > 0 && h.CreateRateBurst < 1 {
		h.CreateRateBurst = 1
	}
	if h.MaxBodyBytes <= 0 {
		h.MaxBodyBytes = 1 << 20
	}
}
