package deployment

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/apperr"
	"github.com/wisbric/launchpad/internal/platform/dbtest"
	"github.com/wisbric/launchpad/pkg/catalog"
	"github.com/wisbric/launchpad/pkg/job"
	"github.com/wisbric/launchpad/pkg/naming"
	"github.com/wisbric/launchpad/pkg/user"
)

type fixture struct {
	db       *sqlx.DB
	svc      *Service
	jobs     *job.Store
	users    *user.Service
	catalog  *catalog.Service
	user     user.User
	product  catalog.Product
	template catalog.TemplateVersion
}

var schemaJSON = json.RawMessage(`{
	"type": "object",
	"properties": {
		"user": {
			"type": "object",
			"properties": {"message": {"type": "string"}},
			"additionalProperties": false
		}
	}
}`)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	logger := slog.Default()
	ctx := context.Background()

	f := &fixture{
		db:      db,
		svc:     NewService(db, logger),
		jobs:    job.NewStore(db),
		users:   user.NewService(db, logger),
		catalog: catalog.NewService(db, logger),
	}

	var err error
	f.user, err = f.users.Create(ctx, user.CreateRequest{Email: "u@example.com"})
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	f.product, err = f.catalog.CreateProduct(ctx, catalog.CreateProductRequest{Name: "hello"})
	if err != nil {
		t.Fatalf("creating product: %v", err)
	}
	f.template = f.createTemplate(t, "1.0.0")
	return f
}

func (f *fixture) createTemplate(t *testing.T, version string) catalog.TemplateVersion {
	t.Helper()
	tv, err := f.catalog.CreateTemplate(context.Background(), catalog.CreateTemplateRequest{
		ProductID:    f.product.ID,
		ChartRef:     "oci://example/chart",
		ChartVersion: version,
		ValuesSchema: schemaJSON,
	})
	if err != nil {
		t.Fatalf("creating template %s: %v", version, err)
	}
	return tv
}

func (f *fixture) openJobs(t *testing.T, deploymentID int64) []job.Job {
	t.Helper()
	var open []job.Job
	for _, status := range []string{job.StatusQueued, job.StatusRunning} {
		items, err := f.jobs.List(context.Background(), status, deploymentID, 100)
		if err != nil {
			t.Fatalf("listing jobs: %v", err)
		}
		open = append(open, items...)
	}
	return open
}

func (f *fixture) drainJob(t *testing.T, deploymentID int64) {
	t.Helper()
	open := f.openJobs(t, deploymentID)
	for _, j := range open {
		if err := f.jobs.MarkDone(context.Background(), j.ID); err != nil {
			t.Fatalf("marking job done: %v", err)
		}
	}
}

func TestCreateDeployment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, CreateRequest{
		UserID:            f.user.ID,
		DesiredTemplateID: f.template.ID,
		Domainname:        "a.test",
		UserValues:        json.RawMessage(`{"message": "hi"}`),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if d.Status != StatusProvisioning || d.Generation != 1 {
		t.Errorf("deployment = %+v, want provisioning generation 1", d.Deployment)
	}
	if !naming.IsValidDNSLabel(d.DeploymentUID) || len(d.DeploymentUID) > naming.MaxDNSLabelLen {
		t.Errorf("deployment_uid %q is not a valid DNS label", d.DeploymentUID)
	}
	if d.User == nil || d.DesiredTemplate == nil || d.Product == nil {
		t.Errorf("relationships not loaded: %+v", d)
	}

	open := f.openJobs(t, d.ID)
	if len(open) != 1 || open[0].Reason != job.ReasonCreate {
		t.Errorf("open jobs = %+v, want one create job", open)
	}
}

func TestCreateRejectsInvalidUserValues(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateRequest{
		UserID:            f.user.ID,
		DesiredTemplateID: f.template.ID,
		Domainname:        "b.test",
		UserValues:        json.RawMessage(`{"unknown": true}`),
	})
	if !apperr.IsKind(err, apperr.KindIntegrity) {
		t.Errorf("invalid user values: err = %v, want integrity", err)
	}
}

func TestCreateMissingUserOrTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateRequest{UserID: 9999, DesiredTemplateID: f.template.ID, Domainname: "c.test"})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("missing user: err = %v, want not found", err)
	}

	_, err = f.svc.Create(ctx, CreateRequest{UserID: f.user.ID, DesiredTemplateID: 9999, Domainname: "c.test"})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("missing template: err = %v, want not found", err)
	}
}

func TestCreateDomainCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, CreateRequest{
		UserID: f.user.ID, DesiredTemplateID: f.template.ID, Domainname: "dup.test",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f.drainJob(t, first.ID)

	// A second user deploying the same domain collides on the partial
	// unique index.
	u2, err := f.users.Create(ctx, user.CreateRequest{Email: "other@example.com"})
	if err != nil {
		t.Fatalf("creating second user: %v", err)
	}
	_, err = f.svc.Create(ctx, CreateRequest{
		UserID: u2.ID, DesiredTemplateID: f.template.ID, Domainname: "dup.test",
	})
	if !apperr.IsKind(err, apperr.KindIntegrity) {
		t.Errorf("domain collision: err = %v, want integrity", err)
	}
}

func TestUpdateUpgradeOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t2 := f.createTemplate(t, "2.0.0")

	d, err := f.svc.Create(ctx, CreateRequest{
		UserID: f.user.ID, DesiredTemplateID: t2.ID, Domainname: "up.test",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f.drainJob(t, d.ID)

	// Downgrade to the older template is rejected and state unchanged.
	_, err = f.svc.Update(ctx, UpdateRequest{ID: d.ID, UserID: f.user.ID, DesiredTemplateID: f.template.ID})
	if !apperr.IsKind(err, apperr.KindIntegrity) {
		t.Errorf("downgrade: err = %v, want integrity", err)
	}
	unchanged, err := f.svc.Get(ctx, d.ID, 0)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if unchanged.DesiredTemplateID != t2.ID || unchanged.Generation != d.Generation {
		t.Errorf("deployment mutated by rejected downgrade: %+v", unchanged.Deployment)
	}

	// Upgrade to a newer template succeeds.
	t3 := f.createTemplate(t, "3.0.0")
	updated, err := f.svc.Update(ctx, UpdateRequest{ID: d.ID, UserID: f.user.ID, DesiredTemplateID: t3.ID})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.DesiredTemplateID != t3.ID || updated.Status != StatusProvisioning {
		t.Errorf("updated = %+v, want desired %d provisioning", updated.Deployment, t3.ID)
	}
	if updated.Generation != d.Generation+1 {
		t.Errorf("generation = %d, want %d", updated.Generation, d.Generation+1)
	}

	open := f.openJobs(t, d.ID)
	if len(open) != 1 || open[0].Reason != job.ReasonUpdate {
		t.Errorf("open jobs = %+v, want one update job", open)
	}
}

func TestUpdateCrossProductRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.catalog.CreateProduct(ctx, catalog.CreateProductRequest{Name: "other"})
	if err != nil {
		t.Fatalf("creating product: %v", err)
	}
	tvOther, err := f.catalog.CreateTemplate(ctx, catalog.CreateTemplateRequest{
		ProductID:    other.ID,
		ChartRef:     "oci://example/other",
		ChartVersion: "9.0.0",
	})
	if err != nil {
		t.Fatalf("creating template: %v", err)
	}

	d, err := f.svc.Create(ctx, CreateRequest{
		UserID: f.user.ID, DesiredTemplateID: f.template.ID, Domainname: "x.test",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f.drainJob(t, d.ID)

	_, err = f.svc.Update(ctx, UpdateRequest{ID: d.ID, UserID: f.user.ID, DesiredTemplateID: tvOther.ID})
	if !apperr.IsKind(err, apperr.KindIntegrity) {
		t.Errorf("cross-product upgrade: err = %v, want integrity", err)
	}
}

func TestUpdateBlockedByOpenJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t2 := f.createTemplate(t, "2.0.0")

	d, err := f.svc.Create(ctx, CreateRequest{
		UserID: f.user.ID, DesiredTemplateID: f.template.ID, Domainname: "busy.test",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// The create job is still open; the update must be rejected and
	// the desired state rolled back with it.
	_, err = f.svc.Update(ctx, UpdateRequest{ID: d.ID, UserID: f.user.ID, DesiredTemplateID: t2.ID})
	if !apperr.IsKind(err, apperr.KindInProgress) {
		t.Errorf("update with open job: err = %v, want deployment in progress", err)
	}

	unchanged, err := f.svc.Get(ctx, d.ID, 0)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if unchanged.DesiredTemplateID != f.template.ID || unchanged.Generation != 1 {
		t.Errorf("state leaked from rolled-back update: %+v", unchanged.Deployment)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, CreateRequest{
		UserID: f.user.ID, DesiredTemplateID: f.template.ID, Domainname: "del.test",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f.drainJob(t, d.ID)

	first, err := f.svc.Delete(ctx, d.ID, f.user.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if first.Status != StatusDeleting || first.DeletedAt == nil {
		t.Errorf("deleted = %+v, want deleting with deleted_at", first.Deployment)
	}
	if first.Generation != d.Generation+1 {
		t.Errorf("generation = %d, want %d", first.Generation, d.Generation+1)
	}

	// The second delete is a no-op: same status, no extra job.
	second, err := f.svc.Delete(ctx, d.ID, f.user.ID)
	if err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if second.Status != StatusDeleting || second.Generation != first.Generation {
		t.Errorf("second delete mutated state: %+v", second.Deployment)
	}

	all, err := f.jobs.List(ctx, "", d.ID, 100)
	if err != nil {
		t.Fatalf("listing jobs: %v", err)
	}
	deletes := 0
	for _, j := range all {
		if j.Reason == job.ReasonDelete {
			deletes++
		}
	}
	if deletes != 1 {
		t.Errorf("delete jobs = %d, want exactly 1", deletes)
	}
}

func TestDomainReusableAfterDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, CreateRequest{
		UserID: f.user.ID, DesiredTemplateID: f.template.ID, Domainname: "reuse.test",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f.drainJob(t, d.ID)

	// Simulate the reconciler finishing the delete path.
	if _, err := f.svc.Delete(ctx, d.ID, f.user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	f.drainJob(t, d.ID)
	store := NewStore(f.db)
	if err := store.PersistOutcome(ctx, d.ID, Outcome{Status: StatusDeleted}); err != nil {
		t.Fatalf("PersistOutcome() error = %v", err)
	}

	// The domain index only covers non-deleted rows.
	if _, err := f.svc.Create(ctx, CreateRequest{
		UserID: f.user.ID, DesiredTemplateID: f.template.ID, Domainname: "reuse.test",
	}); err != nil {
		t.Errorf("re-creating domain after deleted: %v", err)
	}
}
