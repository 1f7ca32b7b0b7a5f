package db

import (
	"context"
	"time"

	"github.com/sufrahq/sufra/internal/config"
	"github.com/sufrahq/sufra/internal/observability"
	obslogger "github.com/sufrahq/sufra/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func New(lc fx.Lifecycle, cfg config.Config, obsCfg observability.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: obslogger.NewGormLogger(gormLoggerConfig(obsCfg)),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Minute)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(ctx context.Context) error {
			log.Info("closing database connection")
			return sqlDB.Close()
		},
	})

	return conn, nil
}

func gormLoggerConfig(obsCfg observability.Config) obslogger.GormLoggerConfig {
	loggerCfg := obslogger.DefaultGormLoggerConfig()
	if obsCfg.SlowQueryThreshold > 0 {
		loggerCfg.SlowThreshold = obsCfg.SlowQueryThreshold
	}
	if obsCfg.Debug() {
		loggerCfg.Level = gormlogger.Info
	}
	return loggerCfg
}

var Module = fx.Module("db",
	fx.Provide(New),
)
