package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wisbric/launchpad/internal/telemetry"
	"github.com/wisbric/launchpad/pkg/job"
	"github.com/wisbric/launchpad/pkg/provision"
)

const (
	// maxStartupJitter randomly delays a worker's first claim so a pool
	// starting together does not hit the claim query at the same
	// instant.
	maxStartupJitter = 5 * time.Second
	// idleInterval is how long a worker sleeps when the queue is empty.
	idleInterval = 2 * time.Second
	// sweepInterval paces the stale-lease recovery sweep.
	sweepInterval = time.Minute
	// leaseDuration is how long a running job's lock is honored before
	// the sweep assumes its worker died. It comfortably exceeds the
	// default helm timeout plus namespace operations.
	leaseDuration = 15 * time.Minute
)

// Worker claims reconcile jobs and runs them until its context is
// cancelled. Multiple workers cooperate safely: the claim is atomic
// and the open-job index keeps each deployment strictly serial.
type Worker struct {
	id         string
	jobs       *job.Store
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewWorker creates a worker over the given database and provisioner.
func NewWorker(db *sqlx.DB, prov provision.Provisioner, logger *slog.Logger) *Worker {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "launchpad"
	}
	id := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
	return &Worker{
		id:         id,
		jobs:       job.NewStore(db),
		reconciler: NewReconciler(db, prov, logger),
		logger:     logger.With("worker_id", id),
	}
}

// ID returns the worker's claim identity.
func (w *Worker) ID() string { return w.id }

// Run blocks, processing jobs until ctx is cancelled. The stale-lease
// sweep runs on a side ticker so one hung reconcile cannot starve
// recovery.
func (w *Worker) Run(ctx context.Context) error {
	jitter := time.Duration(rand.Int63n(int64(maxStartupJitter)))
	w.logger.Info("reconcile worker started",
		"startup_jitter", jitter,
		"idle_interval", idleInterval,
		"lease", leaseDuration,
	)
	if !sleepCtx(ctx, jitter) {
		return nil
	}

	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sweep.C:
				w.sweepStale(ctx)
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("reconcile worker stopped")
			return nil
		}

		claimed, ok, err := w.jobs.ClaimNext(ctx, w.id)
		if err != nil {
			w.logger.Error("claiming job", "error", err)
			if !sleepCtx(ctx, idleInterval) {
				return nil
			}
			continue
		}
		if !ok {
			if !sleepCtx(ctx, idleInterval) {
				return nil
			}
			continue
		}

		telemetry.JobsClaimedTotal.Inc()
		w.logger.Info("claimed reconcile job",
			"job_id", claimed.ID,
			"deployment_id", claimed.DeploymentID,
			"reason", claimed.Reason,
			"attempt", claimed.Attempt,
		)
		if err := w.reconciler.ReconcileJob(ctx, claimed); err != nil {
			w.logger.Error("reconcile job",
				"job_id", claimed.ID,
				"deployment_id", claimed.DeploymentID,
				"error", err,
			)
		}
	}
}

func (w *Worker) sweepStale(ctx context.Context) {
	n, err := w.jobs.RequeueStale(ctx, leaseDuration)
	if err != nil {
		w.logger.Error("stale-lease sweep", "error", err)
		return
	}
	if n > 0 {
		telemetry.StaleJobsRequeuedTotal.Add(float64(n))
		w.logger.Warn("requeued stale jobs", "count", n)
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false
// on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RunPool starts n workers sharing the database and provisioner,
// blocking until all exit.
func RunPool(ctx context.Context, db *sqlx.DB, prov provision.Provisioner, logger *slog.Logger, n int) error {
	if n < 1 {
		n = 1
	}
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		w := NewWorker(db, prov, logger)
		go func() { done <- w.Run(ctx) }()
	}
	var firstErr error
	for i := 0; i < n; i++ {
		if err := <-done; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
