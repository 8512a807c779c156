// Package store selects and opens the record store backend named in the
// configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/featuresync/internal/config"
	"github.com/JonMunkholm/featuresync/internal/core"
	"github.com/JonMunkholm/featuresync/internal/store/memory"
	"github.com/JonMunkholm/featuresync/internal/store/postgres"
)

// Driver names accepted in STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Backend is a record store that also keeps run history.
type Backend interface {
	core.RecordStore
	core.RunRecorder
	Ping(ctx context.Context) error
}

// Open connects to the configured backend. The returned close function
// releases its resources and is never nil.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Backend, func(), error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory:
		s, err := openMemory(cfg)
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() {}, nil
	case DriverPostgres, "":
		return openPostgres(ctx, cfg)
	default:
		return nil, func() {}, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openMemory(cfg config.DatabaseConfig) (*memory.Store, error) {
	s := memory.New()
	for _, spec := range cfg.SeedFiles {
		key, path, err := memory.ParseSeedSpec(spec)
		if err != nil {
			return nil, err
		}
		def, err := core.Lookup(key)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", spec, err)
		}
		n, err := s.LoadSeedFile(def, path)
		if err != nil {
			return nil, err
		}
		slog.Info("seeded dataset", "dataset", key, "records", n, "file", path)
	}
	return s, nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (Backend, func(), error) {
	noop := func() {}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, noop, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, noop, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, noop, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	s := postgres.New(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, noop, err
	}
	if cfg.AutoMigrate {
		if err := s.EnsureDatasetTables(ctx, core.All()); err != nil {
			pool.Close()
			return nil, noop, err
		}
	}
	return s, pool.Close, nil
}
