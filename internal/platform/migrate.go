package platform

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
)

//go:embed schema_sqlite.sql
var sqliteSchema embed.FS

// Migrate brings the database schema up to date. Postgres applies the
// versioned migration files; SQLite applies the embedded schema, which
// is written to be idempotent (IF NOT EXISTS throughout).
func Migrate(ctx context.Context, db *sqlx.DB, databaseURL, migrationsDir string) error {
	if DriverFor(databaseURL) == DriverSQLite {
		return migrateSQLite(ctx, db)
	}
	return migratePostgres(databaseURL, migrationsDir)
}

func migratePostgres(databaseURL, migrationsDir string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsDir), databaseURL)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func migrateSQLite(ctx context.Context, db *sqlx.DB) error {
	ddl, err := sqliteSchema.ReadFile("schema_sqlite.sql")
	if err != nil {
		return fmt.Errorf("reading embedded schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("applying sqlite schema: %w", err)
	}
	return nil
}
