// Package job implements the durable reconcile-job queue backing the
// deployment pipeline.
package job

import "time"

// Reasons a reconcile job is enqueued.
const (
	ReasonCreate = "create"
	ReasonUpdate = "update"
	ReasonDelete = "delete"
	ReasonDrift  = "drift"
	ReasonRetry  = "retry"
)

// Job statuses. A job with StatusQueued or StatusRunning is "open";
// the database allows at most one open job per deployment.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Job is one reconcile work item for a deployment.
type Job struct {
	ID           int64      `db:"id" json:"id"`
	DeploymentID int64      `db:"deployment_id" json:"deployment_id"`
	Reason       string     `db:"reason" json:"reason"`
	Status       string     `db:"status" json:"status"`
	RunAfter     time.Time  `db:"run_after" json:"run_after"`
	Attempt      int        `db:"attempt" json:"attempt"`
	LockedBy     *string    `db:"locked_by" json:"locked_by,omitempty"`
	LockedAt     *time.Time `db:"locked_at" json:"locked_at,omitempty"`
	LastError    *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Open reports whether the job still blocks further jobs for its
// deployment.
func (j Job) Open() bool {
	return j.Status == StatusQueued || j.Status == StatusRunning
}
