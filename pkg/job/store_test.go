package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/apperr"
	"github.com/wisbric/launchpad/internal/platform/dbtest"
)

// seedDeployment inserts the minimal rows a reconcile job needs to
// reference. Returns the deployment id.
func seedDeployment(t *testing.T, db *sqlx.DB, domain, uid string) int64 {
	t.Helper()
	ctx := context.Background()

	var userID int64
	err := sqlx.GetContext(ctx, db, &userID, db.Rebind(
		`INSERT INTO users (email) VALUES (?) RETURNING id`), uid+"@example.com")
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	var productID int64
	err = sqlx.GetContext(ctx, db, &productID, db.Rebind(
		`INSERT INTO products (name) VALUES (?) RETURNING id`), "product-"+uid)
	if err != nil {
		t.Fatalf("seeding product: %v", err)
	}

	var templateID int64
	err = sqlx.GetContext(ctx, db, &templateID, db.Rebind(
		`INSERT INTO product_template_versions (product_id, chart_ref, chart_version)
		 VALUES (?, ?, ?) RETURNING id`), productID, "oci://example/chart", "1.0.0")
	if err != nil {
		t.Fatalf("seeding template: %v", err)
	}

	var deploymentID int64
	err = sqlx.GetContext(ctx, db, &deploymentID, db.Rebind(
		`INSERT INTO deployments (user_id, domainname, deployment_uid, desired_template_id, status)
		 VALUES (?, ?, ?, ?, 'provisioning') RETURNING id`), userID, domain, uid, templateID)
	if err != nil {
		t.Fatalf("seeding deployment: %v", err)
	}
	return deploymentID
}

func TestEnqueueRejectsSecondOpenJob(t *testing.T) {
	db := dbtest.Open(t)
	store := NewStore(db)
	ctx := context.Background()
	deploymentID := seedDeployment(t, db, "a.test", "dep-aaa001")

	first, err := store.Enqueue(ctx, deploymentID, ReasonCreate, time.Time{})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if first.Status != StatusQueued || first.Attempt != 0 {
		t.Errorf("job = %+v, want queued attempt 0", first)
	}

	_, err = store.Enqueue(ctx, deploymentID, ReasonUpdate, time.Time{})
	if !apperr.IsKind(err, apperr.KindInProgress) {
		t.Errorf("second open job: err = %v, want deployment in progress", err)
	}

	// A running job still blocks.
	if _, ok, err := store.ClaimNext(ctx, "w1"); err != nil || !ok {
		t.Fatalf("ClaimNext() = %v, %v", ok, err)
	}
	_, err = store.Enqueue(ctx, deploymentID, ReasonUpdate, time.Time{})
	if !apperr.IsKind(err, apperr.KindInProgress) {
		t.Errorf("enqueue while running: err = %v, want deployment in progress", err)
	}

	// A done job does not.
	if err := store.MarkDone(ctx, first.ID); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}
	if _, err := store.Enqueue(ctx, deploymentID, ReasonUpdate, time.Time{}); err != nil {
		t.Errorf("enqueue after done: %v", err)
	}
}

func TestClaimNextOrderAndLock(t *testing.T) {
	db := dbtest.Open(t)
	store := NewStore(db)
	ctx := context.Background()

	d1 := seedDeployment(t, db, "b1.test", "dep-bbb001")
	d2 := seedDeployment(t, db, "b2.test", "dep-bbb002")

	past := time.Now().UTC().Add(-time.Minute)
	j1, err := store.Enqueue(ctx, d1, ReasonCreate, past)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	j2, err := store.Enqueue(ctx, d2, ReasonCreate, past.Add(time.Second))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	claimed, ok, err := store.ClaimNext(ctx, "worker-a")
	if err != nil || !ok {
		t.Fatalf("ClaimNext() = %v, %v", ok, err)
	}
	if claimed.ID != j1.ID {
		t.Errorf("claimed id = %d, want earliest run_after %d", claimed.ID, j1.ID)
	}
	if claimed.Status != StatusRunning || claimed.LockedBy == nil || *claimed.LockedBy != "worker-a" {
		t.Errorf("claimed = %+v, want running locked by worker-a", claimed)
	}
	if claimed.LockedAt == nil {
		t.Error("claimed.LockedAt = nil, want set")
	}

	second, ok, err := store.ClaimNext(ctx, "worker-b")
	if err != nil || !ok {
		t.Fatalf("second ClaimNext() = %v, %v", ok, err)
	}
	if second.ID != j2.ID {
		t.Errorf("second claim id = %d, want %d", second.ID, j2.ID)
	}

	if _, ok, err := store.ClaimNext(ctx, "worker-c"); err != nil || ok {
		t.Errorf("empty queue claim = %v, %v; want none", ok, err)
	}
}

func TestClaimNextSkipsFutureJobs(t *testing.T) {
	db := dbtest.Open(t)
	store := NewStore(db)
	ctx := context.Background()
	deploymentID := seedDeployment(t, db, "c.test", "dep-ccc001")

	if _, err := store.Enqueue(ctx, deploymentID, ReasonRetry, time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, ok, err := store.ClaimNext(ctx, "w"); err != nil || ok {
		t.Errorf("future job claimed: %v, %v", ok, err)
	}
}

func TestClaimMutualExclusion(t *testing.T) {
	db := dbtest.Open(t)
	store := NewStore(db)
	ctx := context.Background()

	const seeded = 8
	past := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < seeded; i++ {
		id := seedDeployment(t, db,
			"p"+string(rune('0'+i))+".test",
			"dep-par00"+string(rune('0'+i)))
		if _, err := store.Enqueue(ctx, id, ReasonCreate, past); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	const workers = 16
	var wg sync.WaitGroup
	ids := make(chan int64, workers)
	misses := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			j, ok, err := store.ClaimNext(ctx, "worker")
			if err != nil {
				t.Errorf("ClaimNext() error = %v", err)
				return
			}
			if ok {
				ids <- j.ID
			} else {
				misses <- struct{}{}
			}
		}(i)
	}
	wg.Wait()
	close(ids)
	close(misses)

	seen := map[int64]bool{}
	for id := range ids {
		if seen[id] {
			t.Errorf("job %d claimed twice", id)
		}
		seen[id] = true
	}
	if len(seen) != seeded {
		t.Errorf("claims = %d, want %d", len(seen), seeded)
	}
	missed := 0
	for range misses {
		missed++
	}
	if missed != workers-seeded {
		t.Errorf("misses = %d, want %d", missed, workers-seeded)
	}
}

func TestRequeueIncrementsAttemptAndDelays(t *testing.T) {
	db := dbtest.Open(t)
	store := NewStore(db)
	ctx := context.Background()
	deploymentID := seedDeployment(t, db, "d.test", "dep-ddd001")

	if _, err := store.Enqueue(ctx, deploymentID, ReasonCreate, time.Time{}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	claimed, ok, err := store.ClaimNext(ctx, "w")
	if err != nil || !ok {
		t.Fatalf("ClaimNext() = %v, %v", ok, err)
	}

	before := time.Now().UTC()
	if err := store.Requeue(ctx, claimed.ID, "helm timed out", 30*time.Second); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}

	j, err := store.Get(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if j.Status != StatusQueued || j.Attempt != 1 {
		t.Errorf("job = %+v, want queued attempt 1", j)
	}
	if j.LockedBy != nil || j.LockedAt != nil {
		t.Errorf("lock not cleared: %+v", j)
	}
	if j.LastError == nil || *j.LastError != "helm timed out" {
		t.Errorf("last_error = %v, want helm timed out", j.LastError)
	}
	if j.RunAfter.Before(before.Add(25 * time.Second)) {
		t.Errorf("run_after = %v, want ~30s in the future", j.RunAfter)
	}

	// Still not claimable until the delay passes.
	if _, ok, err := store.ClaimNext(ctx, "w"); err != nil || ok {
		t.Errorf("delayed job claimed: %v, %v", ok, err)
	}
}

func TestMarkFailedTerminal(t *testing.T) {
	db := dbtest.Open(t)
	store := NewStore(db)
	ctx := context.Background()
	deploymentID := seedDeployment(t, db, "e.test", "dep-eee001")

	if _, err := store.Enqueue(ctx, deploymentID, ReasonCreate, time.Time{}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	claimed, _, err := store.ClaimNext(ctx, "w")
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if err := store.MarkFailed(ctx, claimed.ID, "chart not found"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	j, err := store.Get(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if j.Status != StatusFailed || j.LastError == nil || *j.LastError != "chart not found" {
		t.Errorf("job = %+v, want failed with error", j)
	}
	if j.Open() {
		t.Error("failed job reported open")
	}
}

func TestListFilters(t *testing.T) {
	db := dbtest.Open(t)
	store := NewStore(db)
	ctx := context.Background()
	deploymentID := seedDeployment(t, db, "f.test", "dep-fff001")

	first, err := store.Enqueue(ctx, deploymentID, ReasonCreate, time.Time{})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := store.MarkDone(ctx, first.ID); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}
	second, err := store.Enqueue(ctx, deploymentID, ReasonUpdate, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	all, err := store.List(ctx, "", deploymentID, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}

	queued, err := store.List(ctx, StatusQueued, deploymentID, 10)
	if err != nil {
		t.Fatalf("List(queued) error = %v", err)
	}
	if len(queued) != 1 || queued[0].ID != second.ID {
		t.Errorf("queued = %+v, want only job %d", queued, second.ID)
	}
}

func TestRequeueStale(t *testing.T) {
	db := dbtest.Open(t)
	store := NewStore(db)
	ctx := context.Background()
	deploymentID := seedDeployment(t, db, "g.test", "dep-ggg001")

	if _, err := store.Enqueue(ctx, deploymentID, ReasonCreate, time.Time{}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	claimed, _, err := store.ClaimNext(ctx, "crashed-worker")
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}

	// A fresh lock is not stale.
	n, err := store.RequeueStale(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("RequeueStale() error = %v", err)
	}
	if n != 0 {
		t.Errorf("recovered = %d, want 0", n)
	}

	// Age the lock artificially.
	stale := time.Now().UTC().Add(-time.Hour)
	if _, err := db.ExecContext(ctx, db.Rebind(
		`UPDATE deployment_reconcile_jobs SET locked_at = ? WHERE id = ?`), stale, claimed.ID); err != nil {
		t.Fatalf("aging lock: %v", err)
	}

	n, err = store.RequeueStale(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("RequeueStale() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered = %d, want 1", n)
	}

	j, err := store.Get(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if j.Status != StatusQueued || j.Attempt != 1 || j.LockedBy != nil {
		t.Errorf("job = %+v, want queued attempt 1 unlocked", j)
	}
}

func TestDedupeOpenKeepsEarliest(t *testing.T) {
	db := dbtest.Open(t)
	store := NewStore(db)
	ctx := context.Background()
	deploymentID := seedDeployment(t, db, "h.test", "dep-hhh001")

	// DedupeOpen repairs states the unique index normally prevents;
	// drop the index to manufacture the duplicates it cleans up.
	if _, err := db.ExecContext(ctx, `DROP INDEX uq_open_job_per_deployment`); err != nil {
		t.Fatalf("dropping open-job index: %v", err)
	}
	var ids []int64
	for i := 0; i < 3; i++ {
		j, err := store.Enqueue(ctx, deploymentID, ReasonCreate, time.Time{})
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		ids = append(ids, j.ID)
	}

	removed, err := store.DedupeOpen(ctx, deploymentID)
	if err != nil {
		t.Fatalf("DedupeOpen() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	remaining, err := store.List(ctx, StatusQueued, deploymentID, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != ids[0] {
		t.Errorf("remaining = %+v, want earliest job %d", remaining, ids[0])
	}
}
