// Package deployment manages per-user deployments and their
// write-side state transitions.
package deployment

import (
	"encoding/json"
	"time"

	"github.com/wisbric/launchpad/pkg/catalog"
	"github.com/wisbric/launchpad/pkg/user"
)

// Deployment statuses.
const (
	StatusPending      = "pending"
	StatusProvisioning = "provisioning"
	StatusReady        = "ready"
	StatusUpgrading    = "upgrading"
	StatusDeleting     = "deleting"
	StatusDeleted      = "deleted"
	StatusError        = "error"
)

// Deployment binds a user to a desired template version under a
// domain name. The deployment_uid doubles as namespace and release
// name.
type Deployment struct {
	ID                int64           `db:"id" json:"id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	Domainname        string          `db:"domainname" json:"domainname"`
	DeploymentUID     string          `db:"deployment_uid" json:"deployment_uid"`
	DesiredTemplateID int64           `db:"desired_template_id" json:"desired_template_id"`
	AppliedTemplateID *int64          `db:"applied_template_id" json:"applied_template_id,omitempty"`
	UserValues        json.RawMessage `db:"user_values_json" json:"user_values_json,omitempty"`
	Status            string          `db:"status" json:"status"`
	Generation        int             `db:"generation" json:"generation"`
	LastError         *string         `db:"last_error" json:"last_error,omitempty"`
	LastReconcileAt   *time.Time      `db:"last_reconcile_at" json:"last_reconcile_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	DeletedAt         *time.Time      `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Detail is a deployment with its eager-loaded relationships.
type Detail struct {
	Deployment
	User            *user.User               `json:"user,omitempty"`
	DesiredTemplate *catalog.TemplateVersion `json:"desired_template,omitempty"`
	AppliedTemplate *catalog.TemplateVersion `json:"applied_template,omitempty"`
	Product         *catalog.Product         `json:"product,omitempty"`
}

// CreateRequest is the boundary payload for creating a deployment.
type CreateRequest struct {
	UserID            int64           `json:"user_id"`
	DesiredTemplateID int64           `json:"desired_template_id"`
	Domainname        string          `json:"domainname"`
	UserValues        json.RawMessage `json:"user_values_json,omitempty"`
}

// UpdateRequest is the boundary payload for upgrading a deployment to
// a newer template version.
type UpdateRequest struct {
	ID                int64 `json:"id"`
	UserID            int64 `json:"user_id"`
	DesiredTemplateID int64 `json:"desired_template_id"`
}

// Outcome is what a reconcile pass persists back onto the deployment.
type Outcome struct {
	Status            string
	AppliedTemplateID *int64
	LastError         *string
	LastReconcileAt   time.Time
}
