package coreapi

import (
	"context"

	"github.com/jordigilh/realestate-collector/pkg/changeledger"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

// ListChanges implements spec.md §6.1 list_changes.
func (f *Facade) ListChanges(ctx context.Context, filter changeledger.ListFilter, page, pageSize int) ([]models.Change, int, error) {
	return f.changes.List(ctx, filter, page, pageSize)
}

// ReviewChange implements spec.md §6.1 review_change.
func (f *Facade) ReviewChange(ctx context.Context, changeID string, decision models.ReviewDecision, reviewedBy string, notes *string) (*models.Change, error) {
	return f.review.ReviewOne(ctx, changeID, decision, reviewedBy, notes)
}

// ReviewBulk implements spec.md §6.1 review_bulk.
func (f *Facade) ReviewBulk(ctx context.Context, changeIDs []string, decision models.ReviewDecision, reviewedBy string, notes *string) (*models.BulkReviewResult, error) {
	return f.review.ReviewBulk(ctx, changeIDs, decision, reviewedBy, notes)
}

// ChangeStats exposes the review engine's stats() for a host dashboard;
// not itself one of the ten named commands but the natural complement to
// list_changes, grounded the same way coverage_report complements
// backfill.
func (f *Facade) ChangeStats(ctx context.Context) (models.ChangeStats, error) {
	return f.review.Stats(ctx)
}
