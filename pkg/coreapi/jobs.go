package coreapi

import (
	"context"

	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/jordigilh/realestate-collector/pkg/orchestrator"
)

// EnqueueJob implements spec.md §6.1 enqueue_job.
func (f *Facade) EnqueueJob(ctx context.Context, spec models.JobSpec) (string, error) {
	return f.jobs.EnqueueJob(ctx, spec)
}

// CancelJob implements spec.md §6.1 cancel_job.
func (f *Facade) CancelJob(ctx context.Context, jobID string) (models.JobStatus, error) {
	return f.jobs.CancelJob(ctx, jobID)
}

// ExecutePending implements spec.md §6.1 execute_pending.
func (f *Facade) ExecutePending(ctx context.Context, maxCount int) ([]string, error) {
	return f.jobs.ExecutePending(ctx, maxCount)
}

// ListJobs implements spec.md §6.1 list_jobs.
func (f *Facade) ListJobs(ctx context.Context, filter orchestrator.ListFilter, page, pageSize int) ([]models.Job, int, error) {
	return f.jobs.ListJobs(ctx, filter, page, pageSize)
}

// JobDetail is get_job's result: the job row plus its recent status
// transitions (spec.md §6.1: "job detail + recent logs").
type JobDetail struct {
	Job     models.Job
	History []models.StatusHistoryEntry
}

// GetJob implements spec.md §6.1 get_job.
func (f *Facade) GetJob(ctx context.Context, jobID string) (*JobDetail, error) {
	job, err := f.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	history, err := f.jobs.JobHistory(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobDetail{Job: *job, History: history}, nil
}
