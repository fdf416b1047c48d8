package user

import (
	"context"
	"log/slog"
	"testing"

	"github.com/wisbric/launchpad/internal/apperr"
	"github.com/wisbric/launchpad/internal/platform/dbtest"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(dbtest.Open(t), slog.Default())
}

func TestCreateAndGet(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateRequest{Email: "U@Example.com"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if u.Email != "u@example.com" {
		t.Errorf("email = %q, want normalized u@example.com", u.Email)
	}

	got, err := svc.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != u.ID || got.Email != u.Email {
		t.Errorf("Get() = %+v, want %+v", got, u)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateRequest{Email: "dup@example.com"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err := svc.Create(ctx, CreateRequest{Email: "dup@example.com"})
	if !apperr.IsKind(err, apperr.KindIntegrity) {
		t.Errorf("duplicate email: err = %v, want integrity", err)
	}
}

func TestDeleteFreesEmail(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateRequest{Email: "gone@example.com"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := svc.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := svc.Get(ctx, u.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("Get() after delete: err = %v, want not found", err)
	}

	// The partial unique index only covers active rows.
	if _, err := svc.Create(ctx, CreateRequest{Email: "gone@example.com"}); err != nil {
		t.Errorf("re-creating soft-deleted email: %v", err)
	}
}

func TestCreateInvalidEmail(t *testing.T) {
	svc := newService(t)
	_, err := svc.Create(context.Background(), CreateRequest{Email: "nope"})
	if !apperr.IsKind(err, apperr.KindIntegrity) {
		t.Errorf("invalid email: err = %v, want integrity", err)
	}
}

func TestDeleteMissingUser(t *testing.T) {
	svc := newService(t)
	if err := svc.Delete(context.Background(), 12345); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("Delete(missing): err = %v, want not found", err)
	}
}
