package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/mmk-reports-api/internal/observability/statsd"
	"golang.org/x/time/rate"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Reports ReportService
	// Optional: readiness probe dependencies
	Readiness *ReadinessHandler
	// Optional: Prometheus exposition handler served at /metrics
	MetricsHandler http.Handler
	// Optional: request timing sink
	Metrics       statsd.Sink
	CreateLimiter *rate.Limiter
	MaxBodyBytes  int64
	Logger        *slog.Logger // Logger for request and handler errors (optional)
}

// NewRouter creates the API router wrapped in the standard middleware chain:
// Recover -> RequestID -> Logging -> MaxBodyBytes -> Metrics -> mux.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	reportHandlers := &ReportHandlers{
		Svc:           services.Reports,
		Logger:        logger,
		CreateLimiter: services.CreateLimiter,
	}
	registerReportRoutes(mux, reportHandlers)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if services.Readiness != nil {
		mux.Handle("GET /readyz", services.Readiness)
	}
	if services.MetricsHandler != nil {
		mux.Handle("GET /metrics", services.MetricsHandler)
	}

	var h http.Handler = mux
	h = Metrics(services.Metrics)(h)
	h = MaxBodyBytes(services.MaxBodyBytes)(h)
	h = Logging(logger)(h)
	h = RequestID()(h)
	h = Recover(logger)(h)
	return h
}

func registerReportRoutes(mux *http.ServeMux, h *ReportHandlers) {
	mux.HandleFunc("POST /api/reports", h.CreateReport)
	mux.HandleFunc("POST /api/reports/generate", h.GenerateReport)
	mux.HandleFunc("GET /api/reports", h.ListReports)
	mux.HandleFunc("GET /api/reports/{id}", h.GetReport)
	mux.HandleFunc("GET /api/reports/{id}/status", h.GetReportStatus)
	mux.HandleFunc("POST /api/reports/{id}/dispatch", h.DispatchReport)
}
