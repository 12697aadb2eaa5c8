// Package backend opens the geometry store and result cache chosen by
// configuration. The server and the maintenance tools share it.
package backend

import (
	"context"
	"fmt"

	"github.com/EmpoweredVote/geo-backend/internal/cache"
	"github.com/EmpoweredVote/geo-backend/internal/config"
	"github.com/EmpoweredVote/geo-backend/internal/db"
	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"github.com/EmpoweredVote/geo-backend/internal/geoload"
	"github.com/EmpoweredVote/geo-backend/internal/store/memory"
	"github.com/EmpoweredVote/geo-backend/internal/store/postgis"
	"go.uber.org/zap"
)

// Store is everything the server and tools need from a geometry store.
type Store interface {
	geographic.Store
	geographic.PopulationWriter
	geographic.StateLister
}

// OpenStore returns the configured geometry store and a health check.
func OpenStore(ctx context.Context, cfg *config.Config, l *zap.Logger) (Store, func(context.Context) error, error) {
	switch cfg.GeoStore {
	case "postgis":
		db.Connect(cfg.DatabaseURL, l)
		geographic.Init()
		ping := func(ctx context.Context) error {
			sqlDB, err := db.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
		return postgis.New(db.DB, l), ping, nil

	case "memory":
		snap, err := geoload.LoadDir(cfg.SnapshotDir, l)
		if err != nil {
			return nil, nil, fmt.Errorf("load snapshot: %w", err)
		}
		s := memory.New()
		s.Load(snap.All())
		return s, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown GEO_STORE %q", cfg.GeoStore)
}

// OpenCache returns the configured result cache. A Redis that cannot be
// reached at startup is replaced by the in-process LRU.
func OpenCache(ctx context.Context, cfg *config.Config, l *zap.Logger) (cache.Cache, *cache.Redis) {
	switch cfg.CacheBackend {
	case "redis":
		r := cache.OpenRedis(cache.RedisOptions{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err := r.Ping(ctx); err != nil {
			l.Warn("redis unavailable, using in-memory cache", zap.Error(err))
			_ = r.Close()
			return cache.NewLRU(cfg.MemoryCacheSize), nil
		}
		l.Info("connected to redis", zap.String("host", cfg.RedisHost))
		return r, r
	case "memory":
		return cache.NewLRU(cfg.MemoryCacheSize), nil
	}
	return cache.Noop{}, nil
}
