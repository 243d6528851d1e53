package migration

import (
	"github.com/aceylabs/finledger/internal/authorization"
	"github.com/aceylabs/finledger/internal/config"
	"github.com/aceylabs/finledger/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, authzSvc authorization.Service) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		if cfg.Environment != "production" && cfg.BootstrapAdminKey != "" {
			return seed.EnsureBootstrapAdminKey(conn, authzSvc, cfg.BootstrapAdminKey)
		}
		return nil
	}),
)
