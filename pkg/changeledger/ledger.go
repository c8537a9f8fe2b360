// Package changeledger is Component B (spec.md §4.B): the append-only
// record of proposed mutations awaiting (or having received) review.
// It only ever appends proposals and flips status fields — applying a
// change to the entity store is the review engine's job (pkg/review).
package changeledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
	"github.com/jordigilh/realestate-collector/pkg/ids"
	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/jordigilh/realestate-collector/pkg/sqlutil"
)

// Ledger is the change ledger's entry point.
type Ledger struct {
	db  *sqlx.DB
	log *zap.Logger
}

// New builds a Ledger over db, logging with log (or a no-op logger if nil).
func New(db *sqlx.DB, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{db: db, log: log}
}

// Append records a new change proposal and assigns it a public ID
// (spec.md §4.D step 4: "write Change(...)").
func (l *Ledger) Append(ctx context.Context, c *models.Change) (string, error) {
	c.ChangeID = ids.New(ids.PrefixChange)

	fieldDiffs, err := json.Marshal(c.FieldDiffs)
	if err != nil {
		return "", apperrors.NewValidationError("marshal field diffs: " + err.Error())
	}
	candidates, err := json.Marshal(hintCandidates(c.DuplicateHint))
	if err != nil {
		return "", apperrors.NewValidationError("marshal duplicate candidates: " + err.Error())
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO changes
			(change_id, job_id, entity_type, entity_id, change_type,
			 proposed_entity_data, existing_entity_data, field_diffs,
			 duplicate_hint, duplicate_candidates, status, confidence, source_urls)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		c.ChangeID, c.JobID, c.EntityType, c.EntityID, c.ChangeType,
		[]byte(c.ProposedEntityData), nullRawMessage(c.ExistingEntityData), fieldDiffs,
		string(c.DuplicateHint.Kind), candidates, c.Status, c.Confidence, pq.Array(c.SourceURLs),
	)
	if err != nil {
		return "", apperrors.NewDatabaseError("append_change", err)
	}
	return c.ChangeID, nil
}

func hintCandidates(h models.DuplicateHint) []string {
	switch h.Kind {
	case models.DuplicateExisting:
		return []string{h.ExistingID}
	case models.DuplicateAmbiguous:
		return h.Candidates
	default:
		return []string{}
	}
}

func nullRawMessage(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// ListPending returns pending changes, optionally filtered by entityType,
// newest-first, paginated by limit/offset (spec.md §4.B: "read pending
// lists with pagination").
func (l *Ledger) ListPending(ctx context.Context, entityType *models.EntityType, limit, offset int) ([]models.Change, error) {
	query := `
		SELECT change_id, job_id, entity_type, entity_id, change_type,
		       proposed_entity_data, existing_entity_data, field_diffs,
		       duplicate_hint, duplicate_candidates, status, confidence,
		       source_urls, reviewed_by, reviewed_at, review_notes, created_at
		FROM changes WHERE status = 'pending'`
	args := []interface{}{}
	if entityType != nil {
		query += fmt.Sprintf(" AND entity_type = $%d", len(args)+1)
		args = append(args, *entityType)
	}
	query += " ORDER BY created_at DESC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, limit, offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list_pending_changes", err)
	}
	defer rows.Close()

	var out []models.Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan pending change", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list_pending_changes", err)
	}
	return out, nil
}

func scanChange(rows *sql.Rows) (models.Change, error) {
	var (
		c                                   models.Change
		fieldDiffsRaw                       []byte
		duplicateHintKind                   string
		duplicateCandidatesRaw              []byte
		existingEntityData                  sql.NullString
		reviewedBy, reviewNotes             sql.NullString
		reviewedAt                          sql.NullTime
		sourceURLs                          pq.StringArray
	)
	if err := rows.Scan(
		&c.ChangeID, &c.JobID, &c.EntityType, &c.EntityID, &c.ChangeType,
		(*[]byte)(&c.ProposedEntityData), &existingEntityData, &fieldDiffsRaw,
		&duplicateHintKind, &duplicateCandidatesRaw, &c.Status, &c.Confidence,
		&sourceURLs, &reviewedBy, &reviewedAt, &reviewNotes, &c.CreatedAt,
	); err != nil {
		return c, err
	}

	if existingEntityData.Valid {
		c.ExistingEntityData = json.RawMessage(existingEntityData.String)
	}
	if err := json.Unmarshal(fieldDiffsRaw, &c.FieldDiffs); err != nil {
		return c, err
	}
	var candidates []string
	if err := json.Unmarshal(duplicateCandidatesRaw, &candidates); err != nil {
		return c, err
	}
	c.DuplicateHint = models.DuplicateHint{Kind: models.DuplicateHintKind(duplicateHintKind)}
	switch c.DuplicateHint.Kind {
	case models.DuplicateExisting:
		if len(candidates) > 0 {
			c.DuplicateHint.ExistingID = candidates[0]
		}
	case models.DuplicateAmbiguous:
		c.DuplicateHint.Candidates = candidates
	}
	c.SourceURLs = sourceURLs
	c.ReviewedBy = sqlutil.FromNullString(reviewedBy)
	c.ReviewNotes = sqlutil.FromNullString(reviewNotes)
	c.ReviewedAt = sqlutil.FromNullTime(reviewedAt)
	return c, nil
}

// ListFilter narrows list_changes (spec.md §6.1).
type ListFilter struct {
	Status     *models.ChangeStatus
	EntityType *models.EntityType
	JobID      *string
}

// List returns changes matching filter, newest-first, paginated by
// page/pageSize, plus the total row count matching filter (spec.md §6.1
// list_changes: "paginated list"). Mirrors orchestrator.JobStore.ListJobs's
// dynamic WHERE-clause construction.
func (l *Ledger) List(ctx context.Context, filter ListFilter, page, pageSize int) ([]models.Change, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.EntityType != nil {
		args = append(args, *filter.EntityType)
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.JobID != nil {
		args = append(args, *filter.JobID)
		where = append(where, fmt.Sprintf("job_id = $%d", len(args)))
	}
	whereClause := ""
	for i, clause := range where {
		if i > 0 {
			whereClause += " AND "
		}
		whereClause += clause
	}

	var total int
	countQuery := "SELECT count(*) FROM changes WHERE " + whereClause
	if err := l.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewDatabaseError("count_changes", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`
		SELECT change_id, job_id, entity_type, entity_id, change_type,
		       proposed_entity_data, existing_entity_data, field_diffs,
		       duplicate_hint, duplicate_candidates, status, confidence,
		       source_urls, reviewed_by, reviewed_at, review_notes, created_at
		FROM changes WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, whereClause, len(args)-1, len(args))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseError("list_changes", err)
	}
	defer rows.Close()

	var out []models.Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, 0, apperrors.NewDatabaseError("scan change", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewDatabaseError("list_changes", err)
	}
	return out, total, nil
}

// GetByID fetches a single change by its public ID (spec.md §4.F
// review_one: the engine needs the full proposal, not just its status,
// to run apply_change).
func (l *Ledger) GetByID(ctx context.Context, changeID string) (*models.Change, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT change_id, job_id, entity_type, entity_id, change_type,
		       proposed_entity_data, existing_entity_data, field_diffs,
		       duplicate_hint, duplicate_candidates, status, confidence,
		       source_urls, reviewed_by, reviewed_at, review_notes, created_at
		FROM changes WHERE change_id = $1`, changeID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get_change", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, apperrors.NewNotFoundError("change " + changeID)
	}
	c, err := scanChange(rows)
	if err != nil {
		return nil, apperrors.NewDatabaseError("scan change", err)
	}
	return &c, nil
}

// Stats counts changes by status (spec.md §4.F stats()).
func (l *Ledger) Stats(ctx context.Context) (models.ChangeStats, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT status, count(*) FROM changes GROUP BY status`)
	if err != nil {
		return models.ChangeStats{}, apperrors.NewDatabaseError("change_stats", err)
	}
	defer rows.Close()

	var stats models.ChangeStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return models.ChangeStats{}, apperrors.NewDatabaseError("scan change stats", err)
		}
		switch models.ChangeStatus(status) {
		case models.ChangeStatusPending:
			stats.Pending = count
		case models.ChangeStatusApproved:
			stats.Approved = count
		case models.ChangeStatusRejected:
			stats.Rejected = count
		case models.ChangeStatusAutoApproved:
			stats.AutoApproved = count
		case models.ChangeStatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return models.ChangeStats{}, apperrors.NewDatabaseError("change_stats", err)
	}
	return stats, nil
}
