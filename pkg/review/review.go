// Package review is Component F: the human-in-the-loop review engine
// that flips a change proposal's status and, on approval, materializes
// the mutation into the entity store (spec.md §4.F).
package review

import (
	"context"

	"github.com/sirupsen/logrus"

	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
	"github.com/jordigilh/realestate-collector/pkg/entitystore"
	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/jordigilh/realestate-collector/pkg/shared/logging"
)

// ChangeStore is the ledger slice the review engine drives. *changeledger.Ledger
// satisfies this.
type ChangeStore interface {
	GetByID(ctx context.Context, changeID string) (*models.Change, error)
	UpdateStatus(ctx context.Context, changeID string, status models.ChangeStatus, reviewedBy string, notes *string) error
	UpdateStatusBulk(ctx context.Context, changeIDs []string, status models.ChangeStatus, reviewedBy string, notes *string) (*models.BulkReviewResult, error)
	Stats(ctx context.Context) (models.ChangeStats, error)
}

// EntityReader is the read-side slice of pkg/entitystore.Store the
// engine needs to detect a stale snapshot before applying an update.
type EntityReader interface {
	ReadCommunity(ctx context.Context, id string, includes []entitystore.Include) (*models.Community, error)
	ReadBuilder(ctx context.Context, id string) (*models.Builder, error)
	ReadProperty(ctx context.Context, id string, includes []entitystore.Include) (*models.Property, error)
}

// EntityWriter is the write-side slice of pkg/entitystore.Store.
type EntityWriter interface {
	UpsertCommunity(ctx context.Context, id *string, c *models.Community) (string, error)
	UpsertBuilder(ctx context.Context, id *string, b *models.Builder) (string, error)
	UpsertProperty(ctx context.Context, id *string, builderRowID, communityRowID int64, p *models.Property) (string, error)
	SoftDelete(ctx context.Context, entityType models.EntityType, id string) error
}

// JobReader looks up the job that originated a change, so the cascade
// resolver can see parent linkage and search_filters.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
}

// Cascader runs spec.md §4.G's post-approval propagation.
type Cascader interface {
	OnApplied(ctx context.Context, job *models.Job, change *models.Change, entityID string) error
}

// Engine is Component F.
type Engine struct {
	changes ChangeStore
	reader  EntityReader
	writer  EntityWriter
	jobs    JobReader
	cascade Cascader
	log     *logrus.Logger
}

// New builds an Engine. cascade may be nil (cascade resolution becomes a
// no-op, useful for tests and for staging review ahead of pkg/cascade).
func New(changes ChangeStore, reader EntityReader, writer EntityWriter, jobs JobReader, cascade Cascader, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{changes: changes, reader: reader, writer: writer, jobs: jobs, cascade: cascade, log: log}
}

// ReviewOne implements spec.md §4.F review_one: flips status; on approve,
// performs apply_change inside the writer's own transaction.
func (e *Engine) ReviewOne(ctx context.Context, changeID string, decision models.ReviewDecision, reviewedBy string, notes *string) (*models.Change, error) {
	change, err := e.changes.GetByID(ctx, changeID)
	if err != nil {
		return nil, err
	}
	if change.Status.Terminal() {
		return nil, apperrors.New(apperrors.ErrorTypeConflict, "change has already been reviewed")
	}

	if decision == models.DecisionReject {
		if err := e.changes.UpdateStatus(ctx, changeID, models.ChangeStatusRejected, reviewedBy, notes); err != nil {
			return nil, err
		}
		change.Status = models.ChangeStatusRejected
		return change, nil
	}

	entityID, err := e.applyChange(ctx, change)
	if err != nil {
		return nil, err
	}
	if err := e.changes.UpdateStatus(ctx, changeID, models.ChangeStatusApproved, reviewedBy, notes); err != nil {
		return nil, err
	}
	change.Status = models.ChangeStatusApproved
	change.EntityID = &entityID

	e.runCascade(ctx, change, entityID)
	return change, nil
}

// ReviewBulk implements spec.md §4.F review_bulk / §6.1: partial success
// per change, reported in BulkReviewResult.Details (scenario S5). Reject
// decisions need no entity mutation, so they delegate to
// ChangeStore.UpdateStatusBulk's single-transaction SAVEPOINT batch;
// approve decisions must drive the entity store per change (the entity
// store and change ledger are separate handles, so the apply-then-flip
// pair cannot itself be wrapped in one cross-package transaction — each
// change's apply and status flip are individually atomic instead).
func (e *Engine) ReviewBulk(ctx context.Context, changeIDs []string, decision models.ReviewDecision, reviewedBy string, notes *string) (*models.BulkReviewResult, error) {
	if decision == models.DecisionReject {
		status := models.ChangeStatusRejected
		return e.changes.UpdateStatusBulk(ctx, changeIDs, status, reviewedBy, notes)
	}

	result := &models.BulkReviewResult{}
	for _, changeID := range changeIDs {
		change, err := e.changes.GetByID(ctx, changeID)
		if err != nil {
			result.Failed++
			result.Details = append(result.Details, models.BulkReviewOutcome{ChangeID: changeID, Status: models.ChangeStatusFailed, Error: err.Error()})
			continue
		}
		if change.Status.Terminal() {
			result.Failed++
			result.Details = append(result.Details, models.BulkReviewOutcome{ChangeID: changeID, Status: models.ChangeStatusFailed, Error: "change has already been reviewed"})
			continue
		}

		entityID, err := e.applyChange(ctx, change)
		if err != nil {
			_ = e.changes.UpdateStatus(ctx, changeID, models.ChangeStatusFailed, reviewedBy, notes)
			result.Failed++
			result.Details = append(result.Details, models.BulkReviewOutcome{ChangeID: changeID, Status: models.ChangeStatusFailed, Error: err.Error()})
			continue
		}
		if err := e.changes.UpdateStatus(ctx, changeID, models.ChangeStatusApproved, reviewedBy, notes); err != nil {
			result.Failed++
			result.Details = append(result.Details, models.BulkReviewOutcome{ChangeID: changeID, Status: models.ChangeStatusFailed, Error: err.Error()})
			continue
		}

		change.Status = models.ChangeStatusApproved
		e.runCascade(ctx, change, entityID)
		result.Approved++
		result.Details = append(result.Details, models.BulkReviewOutcome{ChangeID: changeID, Status: models.ChangeStatusApproved})
	}
	return result, nil
}

// Stats implements spec.md §4.F stats().
func (e *Engine) Stats(ctx context.Context) (models.ChangeStats, error) {
	return e.changes.Stats(ctx)
}

// Apply runs apply_change directly, without a status flip. It satisfies
// pkg/collector.Applier, letting the collector's auto-approval path
// (spec.md §3.4) reuse the exact same create/update/delete semantics
// review_one uses for a human approval, rather than a second
// implementation.
func (e *Engine) Apply(ctx context.Context, change *models.Change) (string, error) {
	return e.applyChange(ctx, change)
}

func (e *Engine) runCascade(ctx context.Context, change *models.Change, entityID string) {
	if e.cascade == nil {
		return
	}
	job, err := e.jobs.GetJob(ctx, change.JobID)
	if err != nil {
		e.log.WithFields(logging.JobFields("cascade_lookup", change.JobID).Error(err).ToLogrus()).
			Warn("could not load originating job; cascade skipped")
		return
	}
	if err := e.cascade.OnApplied(ctx, job, change, entityID); err != nil {
		e.log.WithFields(logging.JobFields("cascade", change.JobID).Error(err).ToLogrus()).
			Error("cascade resolution failed; approval stands, cascade is best-effort")
	}
}
