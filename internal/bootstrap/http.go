package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/target/mmk-reports-api/config"
	httpx "github.com/target/mmk-reports-api/internal/http"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// OnError receives a Serve failure other than a clean shutdown. Optional.
	OnError func(error)
}

// StartHTTPServer binds the listener and serves the report API in the background.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: cfg.Services,
		HTTP:     appCfg.HTTP,
	})

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if appCfg.HTTP.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, appCfg.HTTP.MaxConnections)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      appCfg.HTTP.WriteTimeout,
		IdleTimeout:       appCfg.HTTP.IdleTimeout,
	}
	serve(logger, server, ln, cfg.OnError)
	return server, nil
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services ServiceContainer
	HTTP     config.HTTPConfig
}

func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	var limiter *rate.Limiter
	if cfg.HTTP.CreateRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.HTTP.CreateRateLimit), cfg.HTTP.CreateRateBurst)
		cfg.Logger.Info("report creation rate limit enabled",
			"rate", cfg.HTTP.CreateRateLimit,
			"burst", cfg.HTTP.CreateRateBurst,
		)
	}

	svcs := cfg.Services
	rs := httpx.RouterServices{
		Metrics:       svcs.Observability.MetricsSink,
		CreateLimiter: limiter,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		Logger:        cfg.Logger,
	}
	if svcs.Reports != nil {
		rs.Reports = svcs.Reports
	}
	if svcs.ReportRepo != nil {
		readiness := &httpx.ReadinessHandler{Store: httpx.HealthCheckFunc(svcs.ReportRepo.Ping)}
		if svcs.StatusCache.Enabled() {
			readiness.Cache = svcs.StatusCache
		}
		rs.Readiness = readiness
	}
	if svcs.Observability.Prometheus != nil {
		rs.MetricsHandler = svcs.Observability.Prometheus.Handler()
	}

	return httpx.NewRouter(rs)
}

func serve(logger *slog.Logger, server *http.Server, ln net.Listener, onError func(error)) {
	go func() {
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			if onError != nil {
				onError(err)
			}
		}
	}()
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer stops accepting requests and waits for in-flight ones until Context expires.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	if err := cfg.Server.Shutdown(ctx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
