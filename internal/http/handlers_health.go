package httpx

import (
	"context"
	"io"
	"net/http"
	"time"
)

const healthResponse = `{"status":"ok"}`

const defaultReadinessTimeout = 2 * time.Second

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// HealthChecker is implemented by dependencies that can report their health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// Health calls f.
func (f HealthCheckFunc) Health(ctx context.Context) error { return f(ctx) }

// ReadinessHandler reports whether the service can take traffic. The store is required;
// the cache only degrades the response.
type ReadinessHandler struct {
	Store   HealthChecker
	Cache   HealthChecker
	Timeout time.Duration
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *ReadinessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultReadinessTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp := readinessResponse{Status: "ok", Checks: map[string]string{}}
	code := http.StatusOK

	if h.Store != nil {
		if err := h.Store.Health(ctx); err != nil {
			resp.Checks["postgres"] = "error: " + err.Error()
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
		} else {
			resp.Checks["postgres"] = "ok"
		}
	}

	if h.Cache != nil {
		if err := h.Cache.Health(ctx); err != nil {
			resp.Checks["redis"] = "error: " + err.Error()
			if code == http.StatusOK {
				resp.Status = "degraded"
			}
		} else {
			resp.Checks["redis"] = "ok"
		}
	}

	WriteJSON(w, code, resp)
}
