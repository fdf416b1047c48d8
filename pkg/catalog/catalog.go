// Package catalog manages products and their immutable template
// versions.
package catalog

import (
	"encoding/json"
	"time"
)

// Product is a logical application users can deploy.
type Product struct {
	ID                  int64      `db:"id" json:"id"`
	Name                string     `db:"name" json:"name"`
	Description         *string    `db:"description" json:"description,omitempty"`
	CanonicalTemplateID *int64     `db:"canonical_template_id" json:"canonical_template_id,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	DeletedAt           *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// TemplateVersion is an immutable reference to a Helm chart artifact
// plus its values schema. Within a product, a larger id is a newer
// version; upgrades must move to a strictly greater id.
type TemplateVersion struct {
	ID               int64           `db:"id" json:"id"`
	ProductID        int64           `db:"product_id" json:"product_id"`
	ChartRef         string          `db:"chart_ref" json:"chart_ref"`
	ChartVersion     string          `db:"chart_version" json:"chart_version"`
	ChartDigest      *string         `db:"chart_digest" json:"chart_digest,omitempty"`
	VersionLabel     *string         `db:"version_label" json:"version_label,omitempty"`
	DefaultValues    json.RawMessage `db:"default_values_json" json:"default_values_json,omitempty"`
	ValuesSchema     json.RawMessage `db:"values_schema_json" json:"values_schema_json,omitempty"`
	Capabilities     json.RawMessage `db:"capabilities_json" json:"capabilities_json,omitempty"`
	HealthTimeoutSec *int            `db:"health_timeout_sec" json:"health_timeout_sec,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	DeletedAt        *time.Time      `db:"deleted_at" json:"deleted_at,omitempty"`
}

// CreateProductRequest is the JSON body for POST /api/v1/products.
type CreateProductRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// UpdateProductRequest is the JSON body for PUT /api/v1/products/{id}.
// Nil fields are left unchanged.
type UpdateProductRequest struct {
	Description         *string `json:"description,omitempty"`
	CanonicalTemplateID *int64  `json:"canonical_template_id,omitempty"`
}

// CreateTemplateRequest is the JSON body for creating a template
// version under a product.
type CreateTemplateRequest struct {
	ProductID        int64           `json:"product_id"`
	ChartRef         string          `json:"chart_ref"`
	ChartVersion     string          `json:"chart_version"`
	ChartDigest      *string         `json:"chart_digest,omitempty"`
	VersionLabel     *string         `json:"version_label,omitempty"`
	DefaultValues    json.RawMessage `json:"default_values_json,omitempty"`
	ValuesSchema     json.RawMessage `json:"values_schema_json,omitempty"`
	Capabilities     json.RawMessage `json:"capabilities_json,omitempty"`
	HealthTimeoutSec *int            `json:"health_timeout_sec,omitempty"`
}
