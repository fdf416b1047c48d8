package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/apperr"
	"github.com/wisbric/launchpad/internal/platform"
)

// Store provides database operations for users.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a user Store backed by the given database.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, email, is_admin, created_at, deleted_at`

// Create inserts a new user. A duplicate active email is an integrity
// error.
func (s *Store) Create(ctx context.Context, email string, isAdmin bool) (User, error) {
	query := s.db.Rebind(`INSERT INTO users (email, is_admin, created_at)
		VALUES (?, ?, ?) RETURNING ` + userColumns)
	var u User
	err := sqlx.GetContext(ctx, s.db, &u, query, email, isAdmin, time.Now().UTC())
	if err != nil {
		if platform.IsUniqueViolation(err) {
			return User{}, apperr.Integrityf("a user with email %s already exists", email)
		}
		return User{}, fmt.Errorf("inserting user: %w", err)
	}
	return u, nil
}

// Get returns an active user by ID.
func (s *Store) Get(ctx context.Context, id int64) (User, error) {
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users
		WHERE id = ? AND deleted_at IS NULL`)
	var u User
	if err := sqlx.GetContext(ctx, s.db, &u, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// List returns all active users ordered by id.
func (s *Store) List(ctx context.Context) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL ORDER BY id`
	var items []User
	if err := sqlx.SelectContext(ctx, s.db, &items, query); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return items, nil
}

// SoftDelete marks an active user deleted.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	query := s.db.Rebind(`UPDATE users SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL`)
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}
