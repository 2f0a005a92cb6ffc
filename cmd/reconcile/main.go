package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reconcile/internal/ack"
	"github.com/smallbiznis/reconcile/internal/audit"
	"github.com/smallbiznis/reconcile/internal/authgate"
	"github.com/smallbiznis/reconcile/internal/clock"
	"github.com/smallbiznis/reconcile/internal/config"
	"github.com/smallbiznis/reconcile/internal/guestorder"
	"github.com/smallbiznis/reconcile/internal/idempotency"
	"github.com/smallbiznis/reconcile/internal/invoice"
	"github.com/smallbiznis/reconcile/internal/migration"
	"github.com/smallbiznis/reconcile/internal/observability"
	"github.com/smallbiznis/reconcile/internal/payment"
	"github.com/smallbiznis/reconcile/internal/ratelimit"
	"github.com/smallbiznis/reconcile/internal/server"
	"github.com/smallbiznis/reconcile/internal/tracking"
	"github.com/smallbiznis/reconcile/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Reconciliation
		audit.Module,
		idempotency.Module,
		invoice.Module,
		payment.Module,
		guestorder.Module,
		tracking.Module,

		// Ingestion
		authgate.Module,
		ack.Module,
		ratelimit.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
