package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-reports-api/internal/adapters/reportexec"
	"github.com/target/mmk-reports-api/internal/bootstrap"
)

// withDatabase connects to Postgres for the duration of fn.
func withDatabase(cc *commandContext, fn func(db *sql.DB) error) error {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cc.Config.Postgres, Logger: cc.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cc.Logger.Warn("db close failed", "error", closeErr)
		}
	}()
	return fn(db)
}

// withServices wires the report service against the configured stores. The CLI never executes
// reports: the executor is inert and pending re-dispatch is disabled for reaper passes.
func withServices(ctx context.Context, cc *commandContext, fn func(svcs bootstrap.ServiceContainer) error) error {
	return withDatabase(cc, func(db *sql.DB) error {
		var redisClient redis.UniversalClient
		client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: cc.Config.Redis, Logger: cc.Logger})
		if err != nil {
			cc.Logger.Warn("redis unavailable, cache entries will not be refreshed", "error", err)
		} else {
			redisClient = client
		}
		if redisClient != nil {
			defer func() {
				if closeErr := redisClient.Close(); closeErr != nil {
					cc.Logger.Warn("redis close failed", "error", closeErr)
				}
			}()
		}

		cfg := cc.Config
		cfg.Observability.Prometheus.Enabled = false
		cfg.Reaper.PendingRedispatchAge = 0

		svcs, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{
			Config:      &cfg,
			DB:          db,
			RedisClient: redisClient,
			Logger:      cc.Logger,
			Executor:    &reportexec.SimulatedExecutor{},
		})
		if err != nil {
			return err
		}
		return errors.Join(fn(svcs), svcs.Observability.Close())
	})
}
