package deployment

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/apperr"
	"github.com/wisbric/launchpad/internal/platform"
	"github.com/wisbric/launchpad/internal/telemetry"
	"github.com/wisbric/launchpad/pkg/catalog"
	"github.com/wisbric/launchpad/pkg/job"
	"github.com/wisbric/launchpad/pkg/naming"
	"github.com/wisbric/launchpad/pkg/user"
	"github.com/wisbric/launchpad/pkg/values"
)

// Service owns deployment write-side transitions. Every mutation
// changes deployment state and enqueues a reconcile job in the same
// transaction; either both land or neither does.
type Service struct {
	db      *sqlx.DB
	store   *Store
	users   *user.Store
	catalog *catalog.Store
	logger  *slog.Logger
}

// NewService creates a deployment Service backed by the given
// database.
func NewService(db *sqlx.DB, logger *slog.Logger) *Service {
	return &Service{
		db:      db,
		store:   NewStore(db),
		users:   user.NewStore(db),
		catalog: catalog.NewStore(db),
		logger:  logger,
	}
}

// validateUserValues pre-flights the user delta and the merged
// document against the template schema. The merged check runs even
// with absent user values so schema violations in the defaults are
// caught before any cluster work.
func validateUserValues(tv catalog.TemplateVersion, rawUserValues []byte) error {
	schema, err := values.Decode(tv.ValuesSchema)
	if err != nil {
		return apperr.Integrity("template values_schema_json is not a JSON object")
	}
	defaults, err := values.Decode(tv.DefaultValues)
	if err != nil {
		return apperr.Integrity("template default_values_json is not a JSON object")
	}
	userValues, err := values.Decode(rawUserValues)
	if err != nil {
		return apperr.Integrity("user_values_json is not a JSON object")
	}

	if err := values.ValidateUser(userValues, schema); err != nil {
		return err
	}
	merged := values.MergeScoped(defaults, userValues, nil)
	return values.ValidateMerged(merged, schema)
}

// Create declares a new deployment and enqueues its create job.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Detail, error) {
	domain := strings.TrimSpace(strings.ToLower(req.Domainname))
	if domain == "" {
		return Detail{}, apperr.Integrity("domainname is required")
	}

	u, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return Detail{}, err
	}
	tv, err := s.catalog.GetTemplate(ctx, req.DesiredTemplateID, false)
	if err != nil {
		return Detail{}, err
	}
	product, err := s.catalog.GetProduct(ctx, tv.ProductID)
	if err != nil {
		return Detail{}, err
	}

	if err := validateUserValues(tv, req.UserValues); err != nil {
		return Detail{}, err
	}

	uid, err := naming.DeploymentUID(product.Name, u.Email)
	if err != nil {
		return Detail{}, apperr.Wrap(apperr.KindIntegrity, "deriving deployment uid", err)
	}

	var d Deployment
	err = platform.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var txErr error
		d, txErr = s.store.insert(ctx, tx, insertParams{
			UserID:            u.ID,
			Domainname:        domain,
			DeploymentUID:     uid,
			DesiredTemplateID: tv.ID,
			UserValues:        req.UserValues,
		})
		if txErr != nil {
			return txErr
		}
		_, txErr = job.Enqueue(ctx, tx, d.ID, job.ReasonCreate, time.Time{})
		return txErr
	})
	if err != nil {
		return Detail{}, err
	}

	telemetry.JobsEnqueuedTotal.WithLabelValues(job.ReasonCreate).Inc()
	s.logger.Info("created deployment",
		"deployment_id", d.ID,
		"user_id", u.ID,
		"desired_template_id", tv.ID,
		"deployment_uid", uid,
	)
	return s.store.GetDetail(ctx, d.ID, 0, false)
}

// Update moves a deployment to a newer template of the same product
// and enqueues its update job. Downgrades and cross-product moves are
// integrity errors.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (Detail, error) {
	d, err := s.store.get(ctx, req.ID, req.UserID, false)
	if err != nil {
		return Detail{}, err
	}
	if req.DesiredTemplateID <= d.DesiredTemplateID {
		return Detail{}, apperr.Integrity("can only upgrade to newer template versions, not downgrade")
	}

	target, err := s.catalog.GetTemplate(ctx, req.DesiredTemplateID, false)
	if err != nil {
		return Detail{}, err
	}
	// Templates are soft-delete-only, so a missing current template
	// means a hard-deleted row; the guard cannot apply. Anything else
	// fails closed rather than skipping the same-product check.
	current, err := s.catalog.GetTemplate(ctx, d.DesiredTemplateID, true)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return Detail{}, err
	}
	if err == nil && target.ProductID != current.ProductID {
		return Detail{}, apperr.Integrity("upgrade template must belong to the same product")
	}

	if err := validateUserValues(target, d.UserValues); err != nil {
		return Detail{}, err
	}

	err = platform.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if txErr := s.store.setDesired(ctx, tx, d.ID, target.ID); txErr != nil {
			return txErr
		}
		_, txErr := job.Enqueue(ctx, tx, d.ID, job.ReasonUpdate, time.Time{})
		return txErr
	})
	if err != nil {
		return Detail{}, err
	}

	telemetry.JobsEnqueuedTotal.WithLabelValues(job.ReasonUpdate).Inc()
	s.logger.Info("updated deployment",
		"deployment_id", d.ID,
		"user_id", req.UserID,
		"desired_template_id", target.ID,
	)
	return s.store.GetDetail(ctx, d.ID, 0, false)
}

// Delete marks a deployment for asynchronous removal. Repeated calls
// are no-ops returning the current state.
func (s *Service) Delete(ctx context.Context, deploymentID, userID int64) (Detail, error) {
	d, err := s.store.get(ctx, deploymentID, userID, true)
	if err != nil {
		return Detail{}, err
	}
	if d.Status == StatusDeleting || d.Status == StatusDeleted {
		s.logger.Info("deployment already marked for deletion",
			"deployment_id", deploymentID, "status", d.Status)
		return s.store.GetDetail(ctx, deploymentID, 0, true)
	}

	err = platform.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if txErr := s.store.markDeleting(ctx, tx, d.ID); txErr != nil {
			return txErr
		}
		_, txErr := job.Enqueue(ctx, tx, d.ID, job.ReasonDelete, time.Time{})
		return txErr
	})
	if err != nil {
		return Detail{}, err
	}

	telemetry.JobsEnqueuedTotal.WithLabelValues(job.ReasonDelete).Inc()
	s.logger.Info("marked deployment for deletion", "deployment_id", deploymentID, "user_id", userID)
	return s.store.GetDetail(ctx, deploymentID, 0, true)
}

// Get returns a deployment with relationships, scoped to the user
// when userID is non-zero.
func (s *Service) Get(ctx context.Context, deploymentID, userID int64) (Detail, error) {
	return s.store.GetDetail(ctx, deploymentID, userID, false)
}

// List returns a user's deployments with relationships.
func (s *Service) List(ctx context.Context, userID int64) ([]Detail, error) {
	return s.store.ListByUser(ctx, userID)
}
