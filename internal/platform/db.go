// Package platform provides database connectivity and migrations for
// the Postgres and SQLite backends.
package platform

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know about.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Driver names the selected database backend.
type Driver string

const (
	// DriverPostgres is the pgx database/sql driver.
	DriverPostgres Driver = "pgx"
	// DriverSQLite is the CGo-free modernc driver.
	DriverSQLite Driver = "sqlite"
)

// DriverFor derives the driver from a database URL. Postgres URLs use
// the postgres:// scheme; everything else (sqlite://, file:, plain
// paths, :memory:) is SQLite.
func DriverFor(databaseURL string) Driver {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// sqliteDSN strips the sqlite:// scheme and enables foreign keys,
// which SQLite leaves off by default.
func sqliteDSN(databaseURL string) string {
	dsn := strings.TrimPrefix(databaseURL, "sqlite://")
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Open connects to the database named by the URL and verifies the
// connection.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	driver := DriverFor(databaseURL)
	dsn := databaseURL
	if driver == DriverSQLite {
		dsn = sqliteDSN(databaseURL)
	}

	db, err := sqlx.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == DriverSQLite {
		// A single connection avoids SQLITE_BUSY on concurrent writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// WithTx runs fn inside a transaction, committing on nil and rolling
// back on error or panic.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
