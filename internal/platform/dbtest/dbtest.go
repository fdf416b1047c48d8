// Package dbtest opens throwaway SQLite databases for store and
// service tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/platform"
)

// Open returns a migrated file-backed SQLite database rooted in the
// test's temp dir. The file backing (rather than :memory:) lets tests
// exercise the same single-connection locking the worker sees.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	url := "sqlite://" + filepath.Join(t.TempDir(), "launchpad-test.db")
	db, err := platform.Open(context.Background(), url)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := platform.Migrate(context.Background(), db, url, ""); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}
