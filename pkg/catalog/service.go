package catalog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/apperr"
	"github.com/wisbric/launchpad/pkg/values"
)

// Service encapsulates catalog business logic.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a catalog Service backed by the given database.
func NewService(db *sqlx.DB, logger *slog.Logger) *Service {
	return &Service{store: NewStore(db), logger: logger}
}

// CreateProduct creates a new product.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Product{}, apperr.Integrity("product name is required")
	}
	p, err := s.store.CreateProduct(ctx, name, req.Description)
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("created product", "product_id", p.ID, "name", p.Name)
	return p, nil
}

// GetProduct returns a single active product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.store.GetProduct(ctx, id)
}

// ListProducts returns all active products.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.store.ListProducts(ctx)
}

// UpdateProduct changes a product's description and/or canonical
// template. The canonical template must belong to the product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req UpdateProductRequest) (Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if req.CanonicalTemplateID != nil {
		tv, err := s.store.GetTemplate(ctx, *req.CanonicalTemplateID, false)
		if err != nil {
			return Product{}, err
		}
		if tv.ProductID != id {
			return Product{}, apperr.Integrity("canonical template must belong to the product")
		}
		p.CanonicalTemplateID = req.CanonicalTemplateID
	}
	if req.Description != nil {
		p.Description = req.Description
	}
	updated, err := s.store.UpdateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("updated product", "product_id", id)
	return updated, nil
}

// DeleteProduct soft-deletes a product.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.store.SoftDeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("deleted product", "product_id", id)
	return nil
}

// CreateTemplate creates an immutable template version under an
// existing product.
func (s *Service) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (TemplateVersion, error) {
	if _, err := s.store.GetProduct(ctx, req.ProductID); err != nil {
		return TemplateVersion{}, err
	}
	if strings.TrimSpace(req.ChartRef) == "" {
		return TemplateVersion{}, apperr.Integrity("chart_ref is required")
	}
	if strings.TrimSpace(req.ChartVersion) == "" {
		return TemplateVersion{}, apperr.Integrity("chart_version is required")
	}
	if _, err := semver.NewVersion(req.ChartVersion); err != nil {
		return TemplateVersion{}, apperr.Integrityf("chart_version %q is not a semantic version", req.ChartVersion)
	}
	for _, doc := range []struct {
		name string
		raw  []byte
	}{
		{"default_values_json", req.DefaultValues},
		{"values_schema_json", req.ValuesSchema},
		{"capabilities_json", req.Capabilities},
	} {
		if _, err := values.Decode(doc.raw); err != nil {
			return TemplateVersion{}, apperr.Integrityf("%s must be a JSON object", doc.name)
		}
	}

	tv, err := s.store.CreateTemplate(ctx, req)
	if err != nil {
		return TemplateVersion{}, err
	}
	s.logger.Info("created template version",
		"template_id", tv.ID,
		"product_id", tv.ProductID,
		"chart_ref", tv.ChartRef,
		"chart_version", tv.ChartVersion,
	)
	return tv, nil
}

// GetTemplate returns a product's active template version.
func (s *Service) GetTemplate(ctx context.Context, productID, templateID int64) (TemplateVersion, error) {
	tv, err := s.store.GetTemplate(ctx, templateID, false)
	if err != nil {
		return TemplateVersion{}, err
	}
	if tv.ProductID != productID {
		return TemplateVersion{}, apperr.NotFound("template not found")
	}
	return tv, nil
}

// ListTemplates returns a product's active template versions.
func (s *Service) ListTemplates(ctx context.Context, productID int64) ([]TemplateVersion, error) {
	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.ListTemplates(ctx, productID)
}

// DeleteTemplate soft-deletes a product's template version.
func (s *Service) DeleteTemplate(ctx context.Context, productID, templateID int64) error {
	if err := s.store.SoftDeleteTemplate(ctx, productID, templateID); err != nil {
		return err
	}
	s.logger.Info("deleted template version", "template_id", templateID, "product_id", productID)
	return nil
}
