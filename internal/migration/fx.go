package migration

import (
	"strings"

	"github.com/smallbiznis/reconcile/internal/config"
	pkgdb "github.com/smallbiznis/reconcile/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		dbType := strings.ToLower(strings.TrimSpace(cfg.DBType))
		if dbType == "postgres" {
			log.Info("applying postgres migrations")
			return RunPostgres(pkgdb.PostgresDSN(cfg))
		}

		log.Info("auto-migrating schema", zap.String("db_type", dbType))
		return AutoMigrate(conn)
	}),
)
