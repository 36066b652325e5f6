package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-reports-api/config"
	"github.com/target/mmk-reports-api/internal/adapters/reportexec"
	"github.com/target/mmk-reports-api/internal/core"
	"github.com/target/mmk-reports-api/internal/data"
	"github.com/target/mmk-reports-api/internal/observability/metrics"
	"github.com/target/mmk-reports-api/internal/observability/statsd"
	"github.com/target/mmk-reports-api/internal/service"
	"github.com/target/mmk-reports-api/internal/service/workerpool"
	"golang.org/x/sync/errgroup"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Reports       *service.ReportService
	Pool          *workerpool.Pool
	StatusCache   *core.StatusCache
	ReportRepo    *data.ReportRepo
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink fans out to every configured sink. Nil when none is configured.
	MetricsSink   statsd.Sink
	StatsD        *statsd.Client
	Prometheus    *metrics.Prometheus
	MetricsConfig config.ObservabilityMetricsConfig
}

// Close releases sink resources.
func (o ObservabilityContainer) Close() error {
	if o.StatsD == nil {
		return nil
	}
	return o.StatsD.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional: nil disables the status cache
	Logger      *slog.Logger
	// Executor overrides the configured executor. Optional.
	Executor core.ReportExecutor
}

// buildObservability configures the StatsD and Prometheus sinks.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{MetricsConfig: cfg.Metrics}
	sinks := make([]statsd.Sink, 0, 2)

	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.StatsD = client
			sinks = append(sinks, client)
		}
	}

	if cfg.Prometheus.Enabled {
		out.Prometheus = metrics.NewPrometheus(cfg.Prometheus.Namespace)
		sinks = append(sinks, out.Prometheus)
	}

	out.MetricsSink = statsd.Multi(sinks...)
	return out
}

// buildExecutor selects the unit of work from REPORTS_EXECUTOR.
//
//nolint:ireturn // callers only need the port.
func buildExecutor(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (core.ReportExecutor, error) {
	switch cfg.Reports.Executor {
	case config.ExecutorS3:
		store, err := data.NewS3ArtifactRepo(ctx, data.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Profile:         cfg.S3.Profile,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 artifact store: %w", err)
		}
		exec, err := reportexec.NewObjectStoreExecutor(reportexec.ObjectStoreExecutorOptions{
			Store:  store,
			Prefix: cfg.Reports.ArtifactPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create object store executor: %w", err)
		}
		logger.Info("report executor configured", "executor", cfg.Reports.Executor, "bucket", cfg.S3.Bucket)
		return exec, nil
	default:
		logger.Info("report executor configured",
			"executor", config.ExecutorSimulated,
			"delay", cfg.Reports.SimulatedDelay,
		)
		return &reportexec.SimulatedExecutor{Delay: cfg.Reports.SimulatedDelay}, nil
	}
}

// NewServices wires repositories, the status cache, the worker pool and the report service.
// The pool is created but not started.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("config and database are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability)

	repo := data.NewReportRepo(deps.DB, data.RepoConfig{Logger: logger})

	var cacheRepo core.CacheRepository
	if deps.RedisClient != nil {
		cacheRepo = data.NewRedisCacheRepo(deps.RedisClient)
	}
	statusCache := core.NewStatusCache(core.StatusCacheOptions{
		Cache:  cacheRepo,
		Config: core.StatusCacheConfig{TTL: cfg.Reports.StatusCacheTTL},
		Logger: logger,
	})

	executor := deps.Executor
	if executor == nil {
		var err error
		executor, err = buildExecutor(ctx, cfg, logger)
		if err != nil {
			return ServiceContainer{}, errors.Join(err, observability.Close())
		}
	}

	pool := workerpool.New(workerpool.Options{
		Workers:   cfg.Reports.Workers,
		QueueSize: cfg.Reports.QueueSize,
		Logger:    logger,
	})

	reports, err := service.NewReportService(service.ReportServiceOptions{
		Repo:     repo,
		Executor: executor,
		Pool:     pool,
		Cache:    statusCache,
		Reaper:   repo,
		Logger:   logger,
		Metrics:  observability.MetricsSink,
		Config: service.ReportServiceConfig{
			ExecutionTimeout: cfg.Reports.ExecutionTimeout,
		},
	})
	if err != nil {
		return ServiceContainer{}, errors.Join(fmt.Errorf("create report service: %w", err), observability.Close())
	}

	return ServiceContainer{
		Reports:       reports,
		Pool:          pool,
		StatusCache:   statusCache,
		ReportRepo:    repo,
		Observability: observability,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// Signals overrides the shutdown signal source. Optional.
	Signals <-chan os.Signal
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
	poolMonitorInterval = 10 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// reportError forwards a service failure without blocking.
func (d *serviceStartupDeps) reportError(name string, err error) {
	errMsg := fmt.Errorf("%s failed: %w", name, err)
	select {
	case d.errCh <- errMsg:
	case <-d.ctx.Done():
	default:
		d.logger.WarnContext(d.ctx, "dropping background service error", "service", name, "error", errMsg)
	}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil, nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
		OnError:  func(err error) { deps.reportError("http server", err) },
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			deps.reportError(descriptor.name, err)
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			return RunReaper(ctx, ReaperConfig{
				Reports: deps.cfg.Services.Reports,
				Logger:  deps.logger,
				Config:  reaperCfg,
				Metrics: deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func newPoolMonitorBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeHTTP,
		name: "worker pool monitor",
		start: func(ctx context.Context) error {
			return RunPoolMonitor(ctx, PoolMonitorConfig{
				Pool:     deps.cfg.Services.Pool,
				Metrics:  deps.cfg.Services.Observability.MetricsSink,
				Interval: poolMonitorInterval,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newReaperBackgroundService(deps),
		newPoolMonitorBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts the worker pool, resumes leftover PENDING jobs and launches every
// enabled service.
func startServices(deps *serviceStartupDeps) (ServiceStartupResult, error) {
	svcs := deps.cfg.Services
	if svcs.Pool != nil {
		// The pool outlives the service context so shutdown can stop it after HTTP drains.
		if err := svcs.Pool.Start(context.WithoutCancel(deps.ctx)); err != nil {
			return ServiceStartupResult{}, fmt.Errorf("start worker pool: %w", err)
		}
	}

	if deps.enabledServices[config.ServiceModeHTTP] && deps.cfg.Config.Reports.ResumePendingOnStart && svcs.Reports != nil {
		n, err := svcs.Reports.ResumePending(deps.ctx)
		if err != nil {
			deps.logger.WarnContext(deps.ctx, "resume pending reports failed", "error", err)
		} else if n > 0 {
			deps.logger.InfoContext(deps.ctx, "resumed pending reports", "count", n)
		}
	}

	server, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return ServiceStartupResult{}, err
	}

	return ServiceStartupResult{
		HTTPServer: server,
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}, nil
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	sdCfg := shutdownConfig{
		cancel:  cancel,
		errCh:   errCh,
		pool:    cfg.Services.Pool,
		logger:  logger,
		timeout: cfg.Config.HTTP.ShutdownTimeout,
		signals: cfg.Signals,
	}

	result, err := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})
	if err != nil {
		cancel()
		return errors.Join(err, gracefulStop(sdCfg))
	}

	sdCfg.httpServer = result.HTTPServer
	sdCfg.backgrounds = result.Background
	return waitForShutdown(sdCfg)
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	// HTTP also runs the pool monitor.
	if enabled[config.ServiceModeHTTP] {
		count++
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return max(1, errorChannelCapacity(enabled)+1)
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	pool        *workerpool.Pool
	logger      *slog.Logger
	timeout     time.Duration
	signals     <-chan os.Signal
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for a shutdown signal or a service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := cfg.signals
	if quit == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		quit = ch
	}

	select {
	case sig := <-quit:
		cfg.logger.Info("shutting down services...", "signal", sig)
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop drains HTTP, then stops the pool so running executions record their
// interruption, while background services wind down in parallel.
func gracefulStop(cfg shutdownConfig) error {
	timeout := cfg.timeout
	if timeout <= 0 {
		timeout = shutdownWaitTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: ctx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			cfg.logger.Error("HTTP server shutdown failed", "error", err)
		}
		if cfg.pool == nil {
			return nil
		}
		if err := cfg.pool.Stop(ctx); err != nil {
			return fmt.Errorf("stop worker pool: %w", err)
		}
		return nil
	})
	for _, svc := range cfg.backgrounds {
		g.Go(func() error {
			waitForService(svc.done, svc.name, cfg.logger)
			return nil
		})
	}
	return g.Wait()
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
