package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// PoolConfig sizes the database/sql pool behind gorm.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// DefaultPool suits a single API instance in front of a managed Postgres.
var DefaultPool = PoolConfig{MaxOpen: 20, MaxIdle: 20, MaxLifetime: 30 * time.Minute}

// Open connects to PostGIS and routes gorm's SQL log through zap.
func Open(dsn string, pool PoolConfig, l *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	if l == nil {
		l = zap.NewNop()
	}

	// Slow queries surface at warn; everything else stays at debug.
	std, err := zap.NewStdLogAt(l.Named("gorm"), zapcore.DebugLevel)
	if err != nil {
		return nil, fmt.Errorf("gorm logger: %w", err)
	}
	level := logger.Warn
	if l.Core().Enabled(zapcore.DebugLevel) {
		level = logger.Info
	}
	lg := logger.New(std, logger.Config{
		SlowThreshold:             100 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	d, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: lg})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := d.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)

	return d, nil
}

// Connect opens the shared connection used by Init functions.
func Connect(dsn string, l *zap.Logger) {
	d, err := Open(dsn, DefaultPool, l)
	if err != nil {
		zap.L().Fatal("failed to connect to database", zap.Error(err))
	}
	DB = d
	zap.L().Info("connected to database")
}
