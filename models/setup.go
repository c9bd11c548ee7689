package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codingric/moneyman/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

type zerologger struct {
	Logger *zerolog.Logger
}

func (z zerologger) LogMode(logger.LogLevel) logger.Interface            { return z }
func (z zerologger) Info(c context.Context, m string, x ...interface{})  { z.Logger.Info().Msgf(m, x...) }
func (z zerologger) Warn(c context.Context, m string, x ...interface{})  { z.Logger.Warn().Msgf(m, x...) }
func (z zerologger) Error(c context.Context, m string, x ...interface{}) { z.Logger.Error().Msgf(m, x...) }
func (z zerologger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	s, r := fc()
	verb := strings.ToLower(strings.Split(s, " ")[0])
	if err != nil && err != gorm.ErrRecordNotFound {
		z.Logger.Error().Err(err).Int64("rows", r).Dur("duration_ms", time.Since(begin)).Str("verb", verb).Msg(s)
		return
	}
	z.Logger.Trace().Int64("rows", r).Dur("duration_ms", time.Since(begin)).Str("verb", verb).Msg(s)
}

// ConnectDatabase opens the connection pool described by cfg. The pool is
// shared by all requests; each query checks out its own connection.
func ConnectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: zerologger{
			Logger: &log.Logger,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("failed to install tracing plugin: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&Transaction{}); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}

	log.Info().Str("driver", cfg.Driver).Msg("Database connected")
	return db, nil
}

// Close releases the pool.
func Close(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil && sqlDB != nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
}
