// Package coreapi is the spec.md §6.1 command surface: the ten commands
// a host application drives the core through. It is a thin composition
// layer — every command is a one- or two-call forward onto orchestrator,
// changeledger, review, or entitystore — and never mutates state of its
// own. "All commands return a result value and never throw across the
// boundary" (§6.1): every method here returns (value, error) and leaves
// classifying that error to the caller, same as the rest of the core.
package coreapi

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/realestate-collector/pkg/changeledger"
	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/jordigilh/realestate-collector/pkg/orchestrator"
)

// JobCommands is the job-queue slice of the command surface.
// *orchestrator.Orchestrator satisfies this.
type JobCommands interface {
	EnqueueJob(ctx context.Context, spec models.JobSpec) (string, error)
	CancelJob(ctx context.Context, jobID string) (models.JobStatus, error)
	ExecutePending(ctx context.Context, maxCount int) ([]string, error)
	ListJobs(ctx context.Context, filter orchestrator.ListFilter, page, pageSize int) ([]models.Job, int, error)
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	JobHistory(ctx context.Context, jobID string) ([]models.StatusHistoryEntry, error)
	HasActiveChildJob(ctx context.Context, parentEntityID string, entityType models.EntityType, jobType models.JobType) (bool, error)
}

// ChangeLister is the read side of the change ledger. *changeledger.Ledger
// satisfies this.
type ChangeLister interface {
	List(ctx context.Context, filter changeledger.ListFilter, page, pageSize int) ([]models.Change, int, error)
}

// Reviewer is the human-review slice of the command surface.
// *review.Engine satisfies this.
type Reviewer interface {
	ReviewOne(ctx context.Context, changeID string, decision models.ReviewDecision, reviewedBy string, notes *string) (*models.Change, error)
	ReviewBulk(ctx context.Context, changeIDs []string, decision models.ReviewDecision, reviewedBy string, notes *string) (*models.BulkReviewResult, error)
	Stats(ctx context.Context) (models.ChangeStats, error)
}

// CoverageReader is the read-only slice of pkg/entitystore the coverage
// commands need. *entitystore.Store satisfies this.
type CoverageReader interface {
	CommunitiesMissingBuilders(ctx context.Context) ([]string, error)
	UnlinkedBuilderCardCount(ctx context.Context) (int, error)
	CommunityCount(ctx context.Context) (int, error)
}

// Facade is spec.md §6.1's entire command surface, composed over the
// components a host application's process wires up once at startup
// (cmd/collectorctl).
type Facade struct {
	jobs     JobCommands
	changes  ChangeLister
	review   Reviewer
	coverage CoverageReader
	log      *logrus.Logger
}

// New builds a Facade. log may be nil.
func New(jobs JobCommands, changes ChangeLister, review Reviewer, coverage CoverageReader, log *logrus.Logger) *Facade {
	if log == nil {
		log = logrus.New()
	}
	return &Facade{jobs: jobs, changes: changes, review: review, coverage: coverage, log: log}
}
