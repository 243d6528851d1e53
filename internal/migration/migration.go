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
	"gorm.io/gorm"

	anomalydomain "github.com/aceylabs/finledger/internal/anomaly/domain"
	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	eventdomain "github.com/aceylabs/finledger/internal/event/domain"
	identitydomain "github.com/aceylabs/finledger/internal/identity/domain"
	ledgerdomain "github.com/aceylabs/finledger/internal/ledger/domain"
	partnerdomain "github.com/aceylabs/finledger/internal/partner/domain"
	payoutdomain "github.com/aceylabs/finledger/internal/payout/domain"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// RunMigrations applies the embedded SQL migrations so the engine is
// usable out of the box against a fresh postgres database.
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
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}

// AutoMigrate builds the schema from the models, used for sqlite
// deployments and in-memory test databases where the postgres
// migration driver does not apply.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&eventdomain.FinancialEvent{},
		&partnerdomain.PartnerProfile{},
		&ledgerdomain.MonthlyLedger{},
		&payoutdomain.PayoutBatch{},
		&anomalydomain.FinancialFlag{},
		&auditdomain.Entry{},
		&identitydomain.APIKey{},
	)
}
