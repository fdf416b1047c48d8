package job

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

const jobColumns = `id, deployment_id, reason, status, run_after, attempt,
	locked_by, locked_at, last_error, created_at, updated_at`

// Store provides queue operations over deployment_reconcile_jobs.
type Store struct {
	db    *sqlx.DB
	claim claimStrategy
}

// NewStore creates a job Store. The claim strategy is selected once
// from the driver: row-locking backends use FOR UPDATE SKIP LOCKED,
// SQLite uses a single atomic UPDATE with a scalar subquery.
func NewStore(db *sqlx.DB) *Store {
	s := &Store{db: db}
	if platform.Driver(db.DriverName()) == platform.DriverSQLite {
		s.claim = claimSQLite
	} else {
		s.claim = claimPostgres
	}
	return s
}

// claimStrategy atomically moves one runnable job to running. Exactly
// one concurrent caller observes any given job.
type claimStrategy func(ctx context.Context, db *sqlx.DB, workerID string, now time.Time) (Job, error)

// Enqueue inserts a queued job inside the caller's transaction. When
// the deployment already has an open job the open-job unique index
// fires and the caller's transaction must be rolled back.
func Enqueue(ctx context.Context, ext sqlx.ExtContext, deploymentID int64, reason string, runAfter time.Time) (Job, error) {
	now := time.Now().UTC()
	if runAfter.IsZero() {
		runAfter = now
	}
	query := ext.Rebind(`INSERT INTO deployment_reconcile_jobs
		(deployment_id, reason, status, run_after, attempt, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		RETURNING ` + jobColumns)
	var j Job
	err := sqlx.GetContext(ctx, ext, &j, query, deploymentID, reason, StatusQueued, runAfter.UTC(), now, now)
	if err != nil {
		if platform.IsUniqueViolation(err) {
			return Job{}, apperr.InProgress("a reconcile job is already queued or running for this deployment")
		}
		return Job{}, fmt.Errorf("enqueueing reconcile job: %w", err)
	}
	return j, nil
}

// Enqueue inserts a queued job in its own transaction.
func (s *Store) Enqueue(ctx context.Context, deploymentID int64, reason string, runAfter time.Time) (Job, error) {
	return Enqueue(ctx, s.db, deploymentID, reason, runAfter)
}

// ClaimNext claims the next runnable job for the worker. When the
// queue has nothing runnable it returns ok=false and a nil error.
func (s *Store) ClaimNext(ctx context.Context, workerID string) (Job, bool, error) {
	j, err := s.claim(ctx, s.db, workerID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, false, nil
		}
		return Job{}, false, err
	}
	return j, true, nil
}

func claimPostgres(ctx context.Context, db *sqlx.DB, workerID string, now time.Time) (Job, error) {
	var j Job
	err := platform.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		var id int64
		selectQuery := tx.Rebind(`SELECT id FROM deployment_reconcile_jobs
			WHERE status = ? AND run_after <= ?
			ORDER BY run_after, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED`)
		if err := sqlx.GetContext(ctx, tx, &id, selectQuery, StatusQueued, now); err != nil {
			return err
		}
		updateQuery := tx.Rebind(`UPDATE deployment_reconcile_jobs
			SET status = ?, locked_by = ?, locked_at = ?, updated_at = ?
			WHERE id = ?
			RETURNING ` + jobColumns)
		return sqlx.GetContext(ctx, tx, &j, updateQuery, StatusRunning, workerID, now, now, id)
	})
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

func claimSQLite(ctx context.Context, db *sqlx.DB, workerID string, now time.Time) (Job, error) {
	query := db.Rebind(`UPDATE deployment_reconcile_jobs
		SET status = ?, locked_by = ?, locked_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM deployment_reconcile_jobs
			WHERE status = ? AND run_after <= ?
			ORDER BY run_after, id
			LIMIT 1
		)
		RETURNING ` + jobColumns)
	var j Job
	err := sqlx.GetContext(ctx, db, &j, query, StatusRunning, workerID, now, now, StatusQueued, now)
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

// Get returns a job by ID.
func (s *Store) Get(ctx context.Context, id int64) (Job, error) {
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM deployment_reconcile_jobs WHERE id = ?`)
	var j Job
	if err := sqlx.GetContext(ctx, s.db, &j, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, apperr.NotFound("job not found")
		}
		return Job{}, fmt.Errorf("getting job: %w", err)
	}
	return j, nil
}

// MarkDone resolves a job successfully, clearing lock and error state.
func (s *Store) MarkDone(ctx context.Context, id int64) error {
	query := s.db.Rebind(`UPDATE deployment_reconcile_jobs
		SET status = ?, last_error = NULL, locked_by = NULL, locked_at = NULL, updated_at = ?
		WHERE id = ?`)
	return s.finish(ctx, query, StatusDone, time.Now().UTC(), id)
}

// MarkFailed resolves a job terminally, persisting the error.
func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	query := s.db.Rebind(`UPDATE deployment_reconcile_jobs
		SET status = ?, last_error = ?, locked_by = NULL, locked_at = NULL, updated_at = ?
		WHERE id = ?`)
	return s.finish(ctx, query, StatusFailed, errMsg, time.Now().UTC(), id)
}

func (s *Store) finish(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("job not found")
	}
	return nil
}

// Requeue returns a running job to queued with an incremented attempt
// and a delayed run_after.
func (s *Store) Requeue(ctx context.Context, id int64, errMsg string, delay time.Duration) error {
	now := time.Now().UTC()
	query := s.db.Rebind(`UPDATE deployment_reconcile_jobs
		SET status = ?, attempt = attempt + 1, run_after = ?, last_error = ?,
		    locked_by = NULL, locked_at = NULL, updated_at = ?
		WHERE id = ?`)
	return s.finish(ctx, query, StatusQueued, now.Add(delay), errMsg, now, id)
}

// List returns jobs filtered by status and/or deployment, ordered by
// (run_after, id).
func (s *Store) List(ctx context.Context, status string, deploymentID int64, limit int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM deployment_reconcile_jobs WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if deploymentID != 0 {
		query += ` AND deployment_id = ?`
		args = append(args, deploymentID)
	}
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY run_after, id LIMIT ?`
	args = append(args, limit)

	var items []Job
	if err := sqlx.SelectContext(ctx, s.db, &items, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return items, nil
}

// DedupeOpen removes duplicate open jobs for a deployment, keeping the
// earliest. Duplicates cannot arise while the open-job index holds;
// this is a repair tool for operator intervention.
func (s *Store) DedupeOpen(ctx context.Context, deploymentID int64) (int, error) {
	query := s.db.Rebind(`DELETE FROM deployment_reconcile_jobs
		WHERE deployment_id = ? AND status IN (?, ?)
		  AND id != (
			SELECT MIN(id) FROM deployment_reconcile_jobs
			WHERE deployment_id = ? AND status IN (?, ?)
		  )`)
	result, err := s.db.ExecContext(ctx, query,
		deploymentID, StatusQueued, StatusRunning,
		deploymentID, StatusQueued, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("deduping open jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deduping open jobs: %w", err)
	}
	return int(affected), nil
}

// RequeueStale returns running jobs whose lease expired (a crashed or
// hung worker) to queued. Returns the number recovered.
func (s *Store) RequeueStale(ctx context.Context, lease time.Duration) (int, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-lease)
	query := s.db.Rebind(`UPDATE deployment_reconcile_jobs
		SET status = ?, attempt = attempt + 1, run_after = ?,
		    last_error = ?, locked_by = NULL, locked_at = NULL, updated_at = ?
		WHERE status = ? AND locked_at IS NOT NULL AND locked_at < ?`)
	result, err := s.db.ExecContext(ctx, query,
		StatusQueued, now, "worker lease expired", now, StatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeueing stale jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeueing stale jobs: %w", err)
	}
	return int(affected), nil
}
