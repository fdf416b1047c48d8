package user

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/apperr"
)

// Service encapsulates user business logic.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a user Service backed by the given database.
func NewService(db *sqlx.DB, logger *slog.Logger) *Service {
	return &Service{store: NewStore(db), logger: logger}
}

// Create creates a new user.
func (s *Service) Create(ctx context.Context, req CreateRequest) (User, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, apperr.Integrityf("invalid email %q", req.Email)
	}
	u, err := s.store.Create(ctx, email, req.IsAdmin)
	if err != nil {
		return User{}, err
	}
	s.logger.Info("created user", "user_id", u.ID, "email", u.Email)
	return u, nil
}

// Get returns a single active user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.store.Get(ctx, id)
}

// List returns all active users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

// Delete soft-deletes a user.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("deleted user", "user_id", id)
	return nil
}
