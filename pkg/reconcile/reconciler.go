// Package reconcile converges deployments to their desired state by
// driving the provisioner from the durable job queue.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jpillora/backoff"

	"github.com/wisbric/launchpad/internal/apperr"
	"github.com/wisbric/launchpad/internal/proc"
	"github.com/wisbric/launchpad/internal/telemetry"
	"github.com/wisbric/launchpad/pkg/deployment"
	"github.com/wisbric/launchpad/pkg/job"
	"github.com/wisbric/launchpad/pkg/naming"
	"github.com/wisbric/launchpad/pkg/provision"
	"github.com/wisbric/launchpad/pkg/values"
)

// defaultHealthTimeoutSec bounds chart installs when the template does
// not set its own health timeout.
const defaultHealthTimeoutSec = 300

// maxAttempts bounds retryable requeues before a job fails terminally.
const maxAttempts = 5

// Reconciler drives one deployment's convergence per claimed job. It
// is the pipeline's only recovery point: every error inside a
// reconcile is caught, persisted onto the deployment, and turned into
// a requeue or a terminal job failure.
type Reconciler struct {
	deployments *deployment.Store
	jobs        *job.Store
	prov        provision.Provisioner
	logger      *slog.Logger
	retry       *backoff.Backoff
}

// NewReconciler creates a reconciler over the given database and
// provisioner.
func NewReconciler(db *sqlx.DB, prov provision.Provisioner, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		deployments: deployment.NewStore(db),
		jobs:        job.NewStore(db),
		prov:        prov,
		logger:      logger,
		retry: &backoff.Backoff{
			Min:    5 * time.Second,
			Max:    5 * time.Minute,
			Factor: 2,
		},
	}
}

// ReconcileJob processes one claimed job to completion: converge,
// persist the outcome, and resolve the job.
func (r *Reconciler) ReconcileJob(ctx context.Context, j job.Job) error {
	start := time.Now()
	outcome, err := r.reconcile(ctx, j.DeploymentID)
	telemetry.ReconcileDuration.Observe(time.Since(start).Seconds())

	if persistErr := r.deployments.PersistOutcome(ctx, j.DeploymentID, outcome); persistErr != nil {
		// Without a persisted outcome the deployment state is unknown;
		// fail the job so the operator notices.
		r.logger.Error("persisting reconcile outcome",
			"deployment_id", j.DeploymentID, "job_id", j.ID, "error", persistErr)
		_ = r.jobs.MarkFailed(ctx, j.ID, persistErr.Error())
		return persistErr
	}

	if err == nil {
		telemetry.ReconcilesTotal.WithLabelValues(outcome.Status).Inc()
		r.logger.Info("reconcile finished",
			"deployment_id", j.DeploymentID,
			"job_id", j.ID,
			"status", outcome.Status,
		)
		return r.jobs.MarkDone(ctx, j.ID)
	}

	telemetry.ReconcilesTotal.WithLabelValues(deployment.StatusError).Inc()
	var cmdErr *proc.CommandError
	retryable := errors.As(err, &cmdErr) && cmdErr.IsRetryable()
	if retryable && j.Attempt < maxAttempts {
		delay := r.retry.ForAttempt(float64(j.Attempt))
		telemetry.JobsRequeuedTotal.Inc()
		r.logger.Warn("reconcile failed, requeueing",
			"deployment_id", j.DeploymentID,
			"job_id", j.ID,
			"attempt", j.Attempt,
			"delay", delay,
			"error", err,
		)
		return r.jobs.Requeue(ctx, j.ID, err.Error(), delay)
	}

	telemetry.JobsFailedTotal.Inc()
	r.logger.Error("reconcile failed terminally",
		"deployment_id", j.DeploymentID,
		"job_id", j.ID,
		"attempt", j.Attempt,
		"error", err,
	)
	return r.jobs.MarkFailed(ctx, j.ID, err.Error())
}

// ReconcileDeployment converges a deployment outside the queue (the
// one-shot CLI path) and persists the outcome.
func (r *Reconciler) ReconcileDeployment(ctx context.Context, deploymentID int64) (deployment.Outcome, error) {
	outcome, err := r.reconcile(ctx, deploymentID)
	if persistErr := r.deployments.PersistOutcome(ctx, deploymentID, outcome); persistErr != nil {
		return outcome, persistErr
	}
	return outcome, err
}

// reconcile runs one convergence pass and always returns an outcome
// to persist; err is non-nil when the outcome is an error state.
func (r *Reconciler) reconcile(ctx context.Context, deploymentID int64) (deployment.Outcome, error) {
	d, err := r.deployments.GetDetail(ctx, deploymentID, 0, true)
	if err != nil {
		return deployment.Outcome{
			Status:          deployment.StatusError,
			LastError:       errMsg(err),
			LastReconcileAt: time.Now().UTC(),
		}, err
	}

	outcome, err := r.converge(ctx, d)
	if err != nil {
		return deployment.Outcome{
			Status:            deployment.StatusError,
			AppliedTemplateID: d.AppliedTemplateID,
			LastError:         errMsg(err),
			LastReconcileAt:   time.Now().UTC(),
		}, err
	}
	return outcome, nil
}

func errMsg(err error) *string {
	msg := err.Error()
	return &msg
}

func (r *Reconciler) converge(ctx context.Context, d deployment.Detail) (deployment.Outcome, error) {
	if err := validateInputs(d); err != nil {
		return deployment.Outcome{}, err
	}
	if d.DeletedAt != nil {
		return r.convergeDelete(ctx, d)
	}
	return r.convergeApply(ctx, d)
}

// validateInputs checks everything a converge pass depends on before
// any cluster work starts.
func validateInputs(d deployment.Detail) error {
	if d.DeploymentUID == "" {
		return apperr.Integrity("deployment is missing deployment_uid")
	}
	if d.User == nil {
		return apperr.Integrity("deployment is missing its user")
	}
	if d.DesiredTemplate == nil {
		return apperr.Integrity("deployment is missing its desired template")
	}
	if d.DesiredTemplate.DeletedAt != nil {
		return apperr.Integrity("desired template is deleted")
	}
	if d.DesiredTemplate.ChartRef == "" || d.DesiredTemplate.ChartVersion == "" {
		return apperr.Integrity("desired template chart_ref and chart_version are required")
	}
	if d.Product == nil {
		return apperr.Integrity("desired template is missing its product")
	}
	return nil
}

func healthTimeout(tv *deployment.Detail) int {
	if tv.DesiredTemplate != nil && tv.DesiredTemplate.HealthTimeoutSec != nil && *tv.DesiredTemplate.HealthTimeoutSec > 0 {
		return *tv.DesiredTemplate.HealthTimeoutSec
	}
	return defaultHealthTimeoutSec
}

// systemOverrides is the platform-owned values layer. It wins over
// both defaults and the user delta.
func (r *Reconciler) systemOverrides(d deployment.Detail) values.Document {
	return values.Document{}
}

func (r *Reconciler) buildMergedValues(d deployment.Detail) (values.Document, error) {
	tv := d.DesiredTemplate
	schema, err := values.Decode(tv.ValuesSchema)
	if err != nil {
		return nil, apperr.Integrity("template values_schema_json is not a JSON object")
	}
	defaults, err := values.Decode(tv.DefaultValues)
	if err != nil {
		return nil, apperr.Integrity("template default_values_json is not a JSON object")
	}
	userValues, err := values.Decode(d.UserValues)
	if err != nil {
		return nil, apperr.Integrity("user_values_json is not a JSON object")
	}

	if err := values.ValidateUser(userValues, schema); err != nil {
		return nil, err
	}
	merged := values.MergeScoped(defaults, userValues, r.systemOverrides(d))
	if err := values.ValidateMerged(merged, schema); err != nil {
		return nil, err
	}
	return merged, nil
}

func (r *Reconciler) convergeApply(ctx context.Context, d deployment.Detail) (deployment.Outcome, error) {
	release, err := naming.ReleaseFor(d.DeploymentUID)
	if err != nil {
		return deployment.Outcome{}, apperr.Wrap(apperr.KindIntegrity, "resolving release identity", err)
	}
	namespace := release

	merged, err := r.buildMergedValues(d)
	if err != nil {
		return deployment.Outcome{}, err
	}

	r.logger.Debug("applying deployment",
		"deployment_id", d.ID,
		"release", release,
		"namespace", namespace,
		"template_id", d.DesiredTemplateID,
	)

	if _, err := r.prov.EnsureNamespace(ctx, namespace); err != nil {
		return deployment.Outcome{}, err
	}

	var digest string
	if d.DesiredTemplate.ChartDigest != nil {
		digest = *d.DesiredTemplate.ChartDigest
	}
	if _, err := r.prov.UpgradeInstall(ctx, provision.UpgradeInstallParams{
		Release:      release,
		Namespace:    namespace,
		ChartRef:     d.DesiredTemplate.ChartRef,
		ChartVersion: d.DesiredTemplate.ChartVersion,
		ChartDigest:  digest,
		Values:       merged,
		TimeoutSec:   healthTimeout(&d),
		Atomic:       true,
		Wait:         true,
	}); err != nil {
		return deployment.Outcome{}, err
	}

	desired := d.DesiredTemplateID
	return deployment.Outcome{
		Status:            deployment.StatusReady,
		AppliedTemplateID: &desired,
		LastReconcileAt:   time.Now().UTC(),
	}, nil
}

func (r *Reconciler) convergeDelete(ctx context.Context, d deployment.Detail) (deployment.Outcome, error) {
	release, err := naming.ReleaseFor(d.DeploymentUID)
	if err != nil {
		return deployment.Outcome{}, apperr.Wrap(apperr.KindIntegrity, "resolving release identity", err)
	}
	namespace := release

	r.logger.Debug("deleting deployment",
		"deployment_id", d.ID,
		"release", release,
		"namespace", namespace,
	)

	if _, err := r.prov.Uninstall(ctx, release, namespace, healthTimeout(&d), true); err != nil {
		return deployment.Outcome{}, err
	}
	if _, err := r.prov.DeleteNamespace(ctx, namespace); err != nil {
		return deployment.Outcome{}, err
	}

	return deployment.Outcome{
		Status:            deployment.StatusDeleted,
		AppliedTemplateID: d.AppliedTemplateID,
		LastReconcileAt:   time.Now().UTC(),
	}, nil
}
