package migration

import (
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.AutoMigrate {
			return nil
		}
		if !db.IsPostgres(conn) {
			log.Warn("skipping migrations: only postgres is migrated automatically",
				zap.String("dialect", conn.Dialector.Name()))
			return nil
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
