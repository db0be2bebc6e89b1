// Package migrations prepares the success target stores.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/multierr"

	"claimant-consumer/internal/logger"
)

//go:embed sql/postgres/*.sql
var postgresMigrations embed.FS

// MigratePostgres applies every pending migration on a dedicated connection
// taken from db. db itself stays open.
func MigratePostgres(ctx context.Context, db *sql.DB, log logger.Logger) (err error) {
	src, err := iofs.New(postgresMigrations, "sql/postgres")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to create postgres driver: %w", err), conn.Close())
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to create migrate instance: %w", err), driver.Close())
	}
	defer func() {
		srcErr, dbErr := m.Close()
		err = multierr.Combine(err, srcErr, dbErr)
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	log.Infow("postgres migrations applied", "version", version, "dirty", dirty)
	return nil
}
