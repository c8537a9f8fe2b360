package changeledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

// UpdateStatus flips a single change's status (spec.md §4.F review_one:
// "flips status"). reviewedBy/notes are recorded alongside the decision.
func (l *Ledger) UpdateStatus(ctx context.Context, changeID string, status models.ChangeStatus, reviewedBy string, notes *string) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE changes SET status=$1, reviewed_by=$2, reviewed_at=now(), review_notes=$3
		WHERE change_id=$4`,
		status, reviewedBy, notes, changeID)
	if err != nil {
		return apperrors.NewDatabaseError("update_change_status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseError("update_change_status", err)
	}
	if rows == 0 {
		return apperrors.NewNotFoundError("change " + changeID)
	}
	return nil
}

// UpdateStatusBulk applies status to every change in changeIDs inside one
// outer transaction, using a SAVEPOINT per change so a single failure
// marks that change failed without rolling back the others — spec.md
// §6.1 review_bulk: "per-change apply inside one outer transaction; on
// any apply failure marks that change failed but still commits the
// remainder (partial success; response returns per-change outcome)".
func (l *Ledger) UpdateStatusBulk(ctx context.Context, changeIDs []string, status models.ChangeStatus, reviewedBy string, notes *string) (*models.BulkReviewResult, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseError("update_status_bulk begin", err)
	}

	result := &models.BulkReviewResult{}
	for i, changeID := range changeIDs {
		savepoint := fmt.Sprintf("change_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			_ = tx.Rollback()
			return nil, apperrors.NewDatabaseError("update_status_bulk savepoint", err)
		}

		applyErr := applyStatusInTx(ctx, tx, changeID, status, reviewedBy, notes)
		if applyErr != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				_ = tx.Rollback()
				return nil, apperrors.NewDatabaseError("update_status_bulk rollback to savepoint", rbErr)
			}
			result.Failed++
			result.Details = append(result.Details, models.BulkReviewOutcome{
				ChangeID: changeID,
				Status:   models.ChangeStatusFailed,
				Error:    applyErr.Error(),
			})
			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			_ = tx.Rollback()
			return nil, apperrors.NewDatabaseError("update_status_bulk release savepoint", err)
		}
		result.Approved++
		result.Details = append(result.Details, models.BulkReviewOutcome{ChangeID: changeID, Status: status})
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewDatabaseError("update_status_bulk commit", err)
	}
	return result, nil
}

func applyStatusInTx(ctx context.Context, tx *sqlx.Tx, changeID string, status models.ChangeStatus, reviewedBy string, notes *string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE changes SET status=$1, reviewed_by=$2, reviewed_at=$3, review_notes=$4
		WHERE change_id=$5 AND status='pending'`,
		status, reviewedBy, time.Now().UTC(), notes, changeID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("change %s not pending or not found", changeID)
	}
	return nil
}
