package deployment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/apperr"
	"github.com/wisbric/launchpad/internal/platform"
	"github.com/wisbric/launchpad/pkg/catalog"
	"github.com/wisbric/launchpad/pkg/user"
)

const deploymentColumns = `id, user_id, domainname, deployment_uid, desired_template_id,
	applied_template_id, user_values_json, status, generation, last_error,
	last_reconcile_at, created_at, deleted_at`

// Store provides database operations for deployments.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a deployment Store backed by the given database.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for transactional composition with
// the job queue.
func (s *Store) DB() *sqlx.DB { return s.db }

// insertParams carries the validated fields for a new deployment row.
type insertParams struct {
	UserID            int64
	Domainname        string
	DeploymentUID     string
	DesiredTemplateID int64
	UserValues        []byte
}

// insert creates a deployment row inside the caller's transaction.
// Domain and uid collisions surface as integrity errors.
func (s *Store) insert(ctx context.Context, ext sqlx.ExtContext, p insertParams) (Deployment, error) {
	var userValues any
	if len(p.UserValues) > 0 {
		userValues = string(p.UserValues)
	}
	query := ext.Rebind(`INSERT INTO deployments
		(user_id, domainname, deployment_uid, desired_template_id, user_values_json,
		 status, generation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		RETURNING ` + deploymentColumns)
	var d Deployment
	err := sqlx.GetContext(ctx, ext, &d, query,
		p.UserID, p.Domainname, p.DeploymentUID, p.DesiredTemplateID, userValues,
		StatusProvisioning, time.Now().UTC())
	if err != nil {
		if platform.IsUniqueViolation(err) {
			return Deployment{}, apperr.Integrity("a deployment with this domain name or uid already exists")
		}
		return Deployment{}, fmt.Errorf("inserting deployment: %w", err)
	}
	return d, nil
}

// get returns a deployment row. Soft-deleted rows are included when
// includeDeleted is set; userID scopes the lookup when non-zero.
func (s *Store) get(ctx context.Context, id, userID int64, includeDeleted bool) (Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = ?`
	args := []any{id}
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	var d Deployment
	if err := sqlx.GetContext(ctx, s.db, &d, s.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Deployment{}, apperr.NotFound("deployment not found")
		}
		return Deployment{}, fmt.Errorf("getting deployment: %w", err)
	}
	return d, nil
}

// GetDetail loads a deployment with its user, desired template (and
// product), and applied template. Relationships that reference
// soft-deleted rows still load; the caller validates their state.
func (s *Store) GetDetail(ctx context.Context, id, userID int64, includeDeleted bool) (Detail, error) {
	d, err := s.get(ctx, id, userID, includeDeleted)
	if err != nil {
		return Detail{}, err
	}
	return s.loadRelations(ctx, d)
}

func (s *Store) loadRelations(ctx context.Context, d Deployment) (Detail, error) {
	detail := Detail{Deployment: d}

	var u user.User
	userQuery := s.db.Rebind(`SELECT id, email, is_admin, created_at, deleted_at
		FROM users WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.db, &u, userQuery, d.UserID); err == nil {
		detail.User = &u
	} else if !errors.Is(err, sql.ErrNoRows) {
		return Detail{}, fmt.Errorf("loading deployment user: %w", err)
	}

	templateQuery := s.db.Rebind(`SELECT id, product_id, chart_ref, chart_version, chart_digest,
		version_label, default_values_json, values_schema_json, capabilities_json,
		health_timeout_sec, created_at, deleted_at
		FROM product_template_versions WHERE id = ?`)

	var desired catalog.TemplateVersion
	if err := sqlx.GetContext(ctx, s.db, &desired, templateQuery, d.DesiredTemplateID); err == nil {
		detail.DesiredTemplate = &desired
	} else if !errors.Is(err, sql.ErrNoRows) {
		return Detail{}, fmt.Errorf("loading desired template: %w", err)
	}

	if d.AppliedTemplateID != nil {
		var applied catalog.TemplateVersion
		if err := sqlx.GetContext(ctx, s.db, &applied, templateQuery, *d.AppliedTemplateID); err == nil {
			detail.AppliedTemplate = &applied
		} else if !errors.Is(err, sql.ErrNoRows) {
			return Detail{}, fmt.Errorf("loading applied template: %w", err)
		}
	}

	if detail.DesiredTemplate != nil {
		var p catalog.Product
		productQuery := s.db.Rebind(`SELECT id, name, description, canonical_template_id,
			created_at, deleted_at FROM products WHERE id = ?`)
		if err := sqlx.GetContext(ctx, s.db, &p, productQuery, detail.DesiredTemplate.ProductID); err == nil {
			detail.Product = &p
		} else if !errors.Is(err, sql.ErrNoRows) {
			return Detail{}, fmt.Errorf("loading product: %w", err)
		}
	}

	return detail, nil
}

// ListByUser returns a user's non-deleted deployments with
// relationships.
func (s *Store) ListByUser(ctx context.Context, userID int64) ([]Detail, error) {
	query := s.db.Rebind(`SELECT ` + deploymentColumns + ` FROM deployments
		WHERE user_id = ? AND deleted_at IS NULL ORDER BY id`)
	var rows []Deployment
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	items := make([]Detail, 0, len(rows))
	for _, d := range rows {
		detail, err := s.loadRelations(ctx, d)
		if err != nil {
			return nil, err
		}
		items = append(items, detail)
	}
	return items, nil
}

// setDesired moves the deployment to a new desired template inside the
// caller's transaction: provisioning status, bumped generation,
// cleared error.
func (s *Store) setDesired(ctx context.Context, ext sqlx.ExtContext, id, templateID int64) error {
	query := ext.Rebind(`UPDATE deployments
		SET desired_template_id = ?, status = ?, generation = generation + 1, last_error = NULL
		WHERE id = ?`)
	_, err := ext.ExecContext(ctx, query, templateID, StatusProvisioning, id)
	if err != nil {
		return fmt.Errorf("updating deployment desired template: %w", err)
	}
	return nil
}

// markDeleting flags the deployment for asynchronous removal inside
// the caller's transaction.
func (s *Store) markDeleting(ctx context.Context, ext sqlx.ExtContext, id int64) error {
	query := ext.Rebind(`UPDATE deployments
		SET status = ?, generation = generation + 1, last_error = NULL, deleted_at = ?
		WHERE id = ?`)
	_, err := ext.ExecContext(ctx, query, StatusDeleting, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("marking deployment deleting: %w", err)
	}
	return nil
}

// PersistOutcome writes a reconcile outcome onto the deployment.
func (s *Store) PersistOutcome(ctx context.Context, id int64, o Outcome) error {
	query := s.db.Rebind(`UPDATE deployments
		SET status = ?, applied_template_id = ?, last_error = ?, last_reconcile_at = ?
		WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query,
		o.Status, o.AppliedTemplateID, o.LastError, o.LastReconcileAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("persisting reconcile outcome: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("persisting reconcile outcome: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("deployment not found")
	}
	return nil
}
