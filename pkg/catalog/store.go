package catalog

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

// Store provides database operations for products and template
// versions.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a catalog Store backed by the given database.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const productColumns = `id, name, description, canonical_template_id, created_at, deleted_at`

const templateColumns = `id, product_id, chart_ref, chart_version, chart_digest, version_label,
	default_values_json, values_schema_json, capabilities_json, health_timeout_sec,
	created_at, deleted_at`

// nullableJSON converts a raw JSON column value for binding; empty
// documents are stored as NULL.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// CreateProduct inserts a product. A duplicate active name is an
// integrity error.
func (s *Store) CreateProduct(ctx context.Context, name string, description *string) (Product, error) {
	query := s.db.Rebind(`INSERT INTO products (name, description, created_at)
		VALUES (?, ?, ?) RETURNING ` + productColumns)
	var p Product
	err := sqlx.GetContext(ctx, s.db, &p, query, name, description, time.Now().UTC())
	if err != nil {
		if platform.IsUniqueViolation(err) {
			return Product{}, apperr.Integrityf("a product named %s already exists", name)
		}
		return Product{}, fmt.Errorf("inserting product: %w", err)
	}
	return p, nil
}

// GetProduct returns an active product by ID.
func (s *Store) GetProduct(ctx context.Context, id int64) (Product, error) {
	query := s.db.Rebind(`SELECT ` + productColumns + ` FROM products
		WHERE id = ? AND deleted_at IS NULL`)
	var p Product
	if err := sqlx.GetContext(ctx, s.db, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, apperr.NotFound("product not found")
		}
		return Product{}, fmt.Errorf("getting product: %w", err)
	}
	return p, nil
}

// ListProducts returns all active products ordered by id.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE deleted_at IS NULL ORDER BY id`
	var items []Product
	if err := sqlx.SelectContext(ctx, s.db, &items, query); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return items, nil
}

// UpdateProduct persists description and canonical template changes.
func (s *Store) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	query := s.db.Rebind(`UPDATE products
		SET description = ?, canonical_template_id = ?
		WHERE id = ? AND deleted_at IS NULL
		RETURNING ` + productColumns)
	var updated Product
	err := sqlx.GetContext(ctx, s.db, &updated, query, p.Description, p.CanonicalTemplateID, p.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, apperr.NotFound("product not found")
		}
		return Product{}, fmt.Errorf("updating product: %w", err)
	}
	return updated, nil
}

// SoftDeleteProduct marks an active product deleted.
func (s *Store) SoftDeleteProduct(ctx context.Context, id int64) error {
	query := s.db.Rebind(`UPDATE products SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL`)
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("product not found")
	}
	return nil
}

// CreateTemplate inserts a template version. Duplicate active
// (chart_ref, chart_version, product) triples are integrity errors.
func (s *Store) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (TemplateVersion, error) {
	query := s.db.Rebind(`INSERT INTO product_template_versions
		(product_id, chart_ref, chart_version, chart_digest, version_label,
		 default_values_json, values_schema_json, capabilities_json, health_timeout_sec, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + templateColumns)
	var tv TemplateVersion
	err := sqlx.GetContext(ctx, s.db, &tv, query,
		req.ProductID, req.ChartRef, req.ChartVersion, req.ChartDigest, req.VersionLabel,
		nullableJSON(req.DefaultValues), nullableJSON(req.ValuesSchema), nullableJSON(req.Capabilities),
		req.HealthTimeoutSec, time.Now().UTC())
	if err != nil {
		if platform.IsUniqueViolation(err) {
			return TemplateVersion{}, apperr.Integrityf(
				"template %s %s already exists for this product", req.ChartRef, req.ChartVersion)
		}
		return TemplateVersion{}, fmt.Errorf("inserting template version: %w", err)
	}
	return tv, nil
}

// GetTemplate returns a template version by ID, including soft-deleted
// rows when includeDeleted is set.
func (s *Store) GetTemplate(ctx context.Context, id int64, includeDeleted bool) (TemplateVersion, error) {
	query := `SELECT ` + templateColumns + ` FROM product_template_versions WHERE id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	var tv TemplateVersion
	if err := sqlx.GetContext(ctx, s.db, &tv, s.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TemplateVersion{}, apperr.NotFound("template not found")
		}
		return TemplateVersion{}, fmt.Errorf("getting template version: %w", err)
	}
	return tv, nil
}

// ListTemplates returns a product's active template versions ordered
// by id.
func (s *Store) ListTemplates(ctx context.Context, productID int64) ([]TemplateVersion, error) {
	query := s.db.Rebind(`SELECT ` + templateColumns + ` FROM product_template_versions
		WHERE product_id = ? AND deleted_at IS NULL ORDER BY id`)
	var items []TemplateVersion
	if err := sqlx.SelectContext(ctx, s.db, &items, query, productID); err != nil {
		return nil, fmt.Errorf("listing template versions: %w", err)
	}
	return items, nil
}

// SoftDeleteTemplate marks a product's template version deleted.
func (s *Store) SoftDeleteTemplate(ctx context.Context, productID, templateID int64) error {
	query := s.db.Rebind(`UPDATE product_template_versions SET deleted_at = ?
		WHERE id = ? AND product_id = ? AND deleted_at IS NULL`)
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), templateID, productID)
	if err != nil {
		return fmt.Errorf("deleting template version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting template version: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("template not found")
	}
	return nil
}
