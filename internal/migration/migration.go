package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	auditdomain "github.com/smallbiznis/reconcile/internal/audit/domain"
	guestorderdomain "github.com/smallbiznis/reconcile/internal/guestorder/domain"
	idempotencydomain "github.com/smallbiznis/reconcile/internal/idempotency/domain"
	invoicedomain "github.com/smallbiznis/reconcile/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/reconcile/internal/payment/domain"
	trackingdomain "github.com/smallbiznis/reconcile/internal/tracking/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Models lists every table the reconciliation core owns, in dependency order.
func Models() []any {
	return []any{
		&idempotencydomain.Record{},
		&invoicedomain.Invoice{},
		&invoicedomain.PaymentReference{},
		&paymentdomain.PaymentAttempt{},
		&paymentdomain.CreditNote{},
		&guestorderdomain.GuestOrder{},
		&trackingdomain.CampaignRecipient{},
		&trackingdomain.CommunicationLog{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate creates the schema from the models. Used for sqlite and mysql,
// where the embedded postgres migrations do not apply.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	return db.AutoMigrate(Models()...)
}

// RunMigrations applies the embedded postgres migrations on an existing handle.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migration migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// RunPostgres opens a dedicated lib/pq connection for migrations and closes
// it afterwards, leaving the application pool untouched.
func RunPostgres(dsn string) error {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return fmt.Errorf("parse migration dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect migration database: %w", err)
	}
	return RunMigrations(db)
}
