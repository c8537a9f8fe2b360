// Package orchestrator is Component E: the job queue and worker pool that
// lease, execute, retry, and cancel collection jobs (spec.md §4.E).
package orchestrator

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/realestate-collector/pkg/collector"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

// Orchestrator is the facade pkg/coreapi drives: a JobStore for the
// command-surface CRUD operations (enqueue_job, get_job, list_jobs) and a
// Pool for background execution.
type Orchestrator struct {
	store *JobStore
	pool  *Pool
}

// New builds an Orchestrator over an already-connected pgx pool and a
// collector to execute leased jobs with.
func New(pgPool *pgxpool.Pool, exec *collector.Collector, cfg Config, log *logrus.Logger) *Orchestrator {
	store := NewJobStore(pgPool)
	return &Orchestrator{
		store: store,
		pool:  NewPool(store, exec, cfg, log),
	}
}

// Start runs the worker pool until ctx is cancelled. Intended to be run in
// its own goroutine by cmd/collectorctl.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.pool.Run(ctx)
}

// EnqueueJob implements spec.md §6.1 enqueue_job.
func (o *Orchestrator) EnqueueJob(ctx context.Context, spec models.JobSpec) (string, error) {
	return o.store.Enqueue(ctx, spec)
}

// GetJob implements spec.md §6.1 get_job.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return o.store.GetJob(ctx, jobID)
}

// HasActiveChildJob reports whether a pending or running job of jobType
// already targets parentEntityID, for backfill's dedup check (spec.md
// §6.1 backfill; the same check pkg/cascade's rule 3 runs per-approval).
func (o *Orchestrator) HasActiveChildJob(ctx context.Context, parentEntityID string, entityType models.EntityType, jobType models.JobType) (bool, error) {
	return o.store.HasActiveChildJob(ctx, parentEntityID, entityType, jobType)
}

// ExecutePending implements spec.md §6.1 execute_pending.
func (o *Orchestrator) ExecutePending(ctx context.Context, maxCount int) ([]string, error) {
	return o.pool.ExecutePending(ctx, maxCount)
}

// JobHistory returns the status transitions recorded for jobID, for
// get_job's "recent logs" detail.
func (o *Orchestrator) JobHistory(ctx context.Context, jobID string) ([]models.StatusHistoryEntry, error) {
	return o.store.JobHistory(ctx, jobID)
}

// ListJobs implements spec.md §6.1 list_jobs.
func (o *Orchestrator) ListJobs(ctx context.Context, filter ListFilter, page, pageSize int) ([]models.Job, int, error) {
	return o.store.ListJobs(ctx, filter, page, pageSize)
}

// CancelJob implements spec.md §6.1 cancel_job / §4.E(5): a pending job is
// cancelled immediately in the store; a running job is marked cancelling
// and, if this process happens to be the one executing it, interrupted
// in-process via the pool's cancellation registry.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) (models.JobStatus, error) {
	status, err := o.store.CancelJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if status == models.JobStatusCancelling {
		o.pool.CancelRunning(jobID)
	}
	return status, nil
}
