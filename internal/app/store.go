package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"seriescache/internal/config"
	"seriescache/internal/metrics"
	"seriescache/internal/seriescache"
	"seriescache/internal/state"
	"seriescache/internal/state/postgres"
	redisstore "seriescache/internal/state/redis"
	"seriescache/internal/state/sqlite"

	"go.uber.org/zap"
)

// OpenerFor returns the backend opener for the configured state driver.
func OpenerFor(cfg config.StateConfig) seriescache.Opener {
	return func(ctx context.Context) (state.Store, error) {
		switch cfg.Driver {
		case "", config.DriverSQLite:
			if dir := filepath.Dir(cfg.SQLitePath); dir != "" && dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, err
				}
			}
			return sqlite.New(cfg.SQLitePath)
		case config.DriverPostgres:
			return postgres.New(ctx, cfg.Postgres.DSN, postgres.Options{
				Table:           cfg.Postgres.Table,
				MaxOpenConns:    cfg.Postgres.MaxOpenConns,
				MaxIdleConns:    cfg.Postgres.MaxIdleConns,
				ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			})
		case config.DriverRedis:
			return redisstore.New(ctx, redisstore.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Prefix:   cfg.Redis.Prefix,
			})
		default:
			return nil, fmt.Errorf("unknown state driver %q", cfg.Driver)
		}
	}
}

// NewCache builds the series cache described by cfg. It is not initialized.
func NewCache(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *seriescache.Cache {
	return seriescache.New(OpenerFor(cfg.State), log, seriescache.Options{
		MaxCandles: cfg.Cache.MaxCandles,
		MaxAge:     cfg.Cache.MaxAge,
		Metrics:    m,
	})
}
