package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
	"github.com/jordigilh/realestate-collector/pkg/ids"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

// JobStore is the orchestrator's persistence layer: the jobs/status_history
// tables, mutated through pgx directly (not sqlx) because lease acquisition
// needs pgx's native `FOR UPDATE SKIP LOCKED` support (spec.md §5 "Jobs
// table: mutated via atomic SELECT ... FOR UPDATE SKIP LOCKED-equivalent
// pattern"; DD-010 in internal/database/sqlx.go).
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore builds a JobStore over an already-connected pool
// (internal/database.Connect).
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

// Enqueue implements spec.md §4.E(1): assign a job_id, store pending,
// reject a duplicate (entity_type, entity_id, job_type) already active
// via the jobs_idempotency_idx unique index.
func (s *JobStore) Enqueue(ctx context.Context, spec models.JobSpec) (string, error) {
	if spec.SearchQuery == "" {
		return "", apperrors.NewValidationError("search_query is required")
	}
	maxAttempts := 3
	if spec.MaxAttempts != nil {
		maxAttempts = *spec.MaxAttempts
	}
	priority := spec.Priority
	if priority < 1 || priority > 10 {
		return "", apperrors.NewValidationError("priority must be between 1 and 10")
	}

	filters, err := json.Marshal(spec.SearchFilters)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid search_filters")
	}

	jobID := ids.New(ids.PrefixJob)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (job_id, entity_type, job_type, entity_id, parent_entity_type, parent_entity_id,
		                   status, priority, max_attempts, search_query, search_filters, initiated_by)
		VALUES ($1,$2,$3,$4,$5,$6,'pending',$7,$8,$9,$10,$11)`,
		jobID, spec.EntityType, spec.JobType, spec.EntityID, spec.ParentEntityType, spec.ParentEntityID,
		priority, maxAttempts, spec.SearchQuery, filters, spec.InitiatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return "", apperrors.New(apperrors.ErrorTypeConflict, "an identical job is already pending or running")
		}
		return "", apperrors.NewDatabaseError("enqueue_job", err)
	}

	if err := s.recordHistory(ctx, s.pool, jobID, nil, models.JobStatusPending, "enqueued"); err != nil {
		return "", err
	}
	return jobID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// querier is the subset of pgx.Tx/pgxpool.Pool that recordHistory needs,
// letting it run either standalone or inside an in-flight transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func (s *JobStore) recordHistory(ctx context.Context, q querier, jobID string, from *models.JobStatus, to models.JobStatus, reason string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO status_history (job_id, from_status, to_status, reason) VALUES ($1,$2,$3,$4)`,
		jobID, from, to, reason)
	if err != nil {
		return apperrors.NewDatabaseError("record_status_history", err)
	}
	return nil
}

// Lease implements spec.md §4.E(2): select the single highest-priority
// pending job whose next_run_at has elapsed, tie-broken by created_at
// asc, and atomically mark it running. Returns (nil, nil) when the queue
// is empty, distinguishing "no work" from a failure.
func (s *JobStore) Lease(ctx context.Context) (*models.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("lease begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var jobID string
	err = tx.QueryRow(ctx, `
		SELECT job_id FROM jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY priority DESC, created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`).Scan(&jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("lease select", err)
	}

	job := &models.Job{}
	err = tx.QueryRow(ctx, `
		UPDATE jobs SET status='running', started_at=now(), attempts=attempts+1
		WHERE job_id=$1
		RETURNING id, job_id, entity_type, job_type, entity_id, parent_entity_type, parent_entity_id,
		          status, priority, attempts, max_attempts, search_query, search_filters,
		          items_found, changes_detected, new_entities_found, changes_applied,
		          created_at, started_at, completed_at, next_run_at, error_message, initiated_by`,
		jobID,
	).Scan(&job.ID, &job.JobID, &job.EntityType, &job.JobType, &job.EntityID, &job.ParentEntityType, &job.ParentEntityID,
		&job.Status, &job.Priority, &job.Attempts, &job.MaxAttempts, &job.SearchQuery, filtersScanner{&job.SearchFilters},
		&job.ItemsFound, &job.ChangesDetected, &job.NewEntitiesFound, &job.ChangesApplied,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.NextRunAt, &job.ErrorMessage, &job.InitiatedBy)
	if err != nil {
		return nil, apperrors.NewDatabaseError("lease update", err)
	}

	pendingStatus := models.JobStatusPending
	if err := s.recordHistory(ctx, tx, jobID, &pendingStatus, models.JobStatusRunning, "leased"); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewDatabaseError("lease commit", err)
	}
	return job, nil
}

// filtersScanner adapts models.SearchFilters (a plain struct) to pgx's
// Scan, unmarshalling the jsonb search_filters column directly into it.
type filtersScanner struct {
	dest *models.SearchFilters
}

func (f filtersScanner) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, f.dest)
	case string:
		return json.Unmarshal([]byte(v), f.dest)
	default:
		return fmt.Errorf("unsupported search_filters scan type %T", src)
	}
}

// CompleteSuccess implements spec.md §4.E(4)'s success branch: write
// counters and mark the job completed.
func (s *JobStore) CompleteSuccess(ctx context.Context, jobID string, itemsFound, changesDetected, newEntitiesFound, changesApplied int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status='completed', completed_at=now(),
		       items_found=$2, changes_detected=$3, new_entities_found=$4, changes_applied=$5
		WHERE job_id=$1`,
		jobID, itemsFound, changesDetected, newEntitiesFound, changesApplied)
	if err != nil {
		return apperrors.NewDatabaseError("complete_success", err)
	}
	runningStatus := models.JobStatusRunning
	return s.recordHistory(ctx, s.pool, jobID, &runningStatus, models.JobStatusCompleted, "completed")
}

// Reschedule implements the Transient-failure retry branch: back to
// pending with next_run_at pushed out by backoff.
func (s *JobStore) Reschedule(ctx context.Context, jobID string, nextRunAt time.Time, reason string) error {
	_, err := s.pool.Exec(ctx, `UPDATE jobs SET status='pending', next_run_at=$2 WHERE job_id=$1`, jobID, nextRunAt)
	if err != nil {
		return apperrors.NewDatabaseError("reschedule", err)
	}
	runningStatus := models.JobStatusRunning
	return s.recordHistory(ctx, s.pool, jobID, &runningStatus, models.JobStatusPending, reason)
}

// Fail implements the Fatal/exhausted-retries/cancelled branch.
func (s *JobStore) Fail(ctx context.Context, jobID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status='failed', completed_at=now(), error_message=$2 WHERE job_id=$1`,
		jobID, reason)
	if err != nil {
		return apperrors.NewDatabaseError("fail", err)
	}
	runningStatus := models.JobStatusRunning
	return s.recordHistory(ctx, s.pool, jobID, &runningStatus, models.JobStatusFailed, reason)
}

// GetJob fetches a job by its public ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	job := &models.Job{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, job_id, entity_type, job_type, entity_id, parent_entity_type, parent_entity_id,
		       status, priority, attempts, max_attempts, search_query, search_filters,
		       items_found, changes_detected, new_entities_found, changes_applied,
		       created_at, started_at, completed_at, next_run_at, error_message, initiated_by
		FROM jobs WHERE job_id=$1`, jobID,
	).Scan(&job.ID, &job.JobID, &job.EntityType, &job.JobType, &job.EntityID, &job.ParentEntityType, &job.ParentEntityID,
		&job.Status, &job.Priority, &job.Attempts, &job.MaxAttempts, &job.SearchQuery, filtersScanner{&job.SearchFilters},
		&job.ItemsFound, &job.ChangesDetected, &job.NewEntitiesFound, &job.ChangesApplied,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.NextRunAt, &job.ErrorMessage, &job.InitiatedBy)
	if err != nil {
		return nil, apperrors.NewNotFoundError("job " + jobID)
	}
	return job, nil
}

// CancelJob implements spec.md §4.E(5): pending jobs cancel immediately;
// running jobs move to cancelling and rely on the pool to interrupt the
// worker at its next cooperative checkpoint.
func (s *JobStore) CancelJob(ctx context.Context, jobID string) (models.JobStatus, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	switch job.Status {
	case models.JobStatusPending:
		_, err := s.pool.Exec(ctx, `UPDATE jobs SET status='cancelled', completed_at=now() WHERE job_id=$1`, jobID)
		if err != nil {
			return "", apperrors.NewDatabaseError("cancel_job", err)
		}
		from := models.JobStatusPending
		if err := s.recordHistory(ctx, s.pool, jobID, &from, models.JobStatusCancelled, "cancelled"); err != nil {
			return "", err
		}
		return models.JobStatusCancelled, nil
	case models.JobStatusRunning:
		_, err := s.pool.Exec(ctx, `UPDATE jobs SET status='cancelling' WHERE job_id=$1`, jobID)
		if err != nil {
			return "", apperrors.NewDatabaseError("cancel_job", err)
		}
		from := models.JobStatusRunning
		if err := s.recordHistory(ctx, s.pool, jobID, &from, models.JobStatusCancelling, "cancel requested"); err != nil {
			return "", err
		}
		return models.JobStatusCancelling, nil
	case models.JobStatusCancelling:
		return models.JobStatusCancelling, nil
	default:
		return "", apperrors.New(apperrors.ErrorTypeConflict, "job is already in a terminal state")
	}
}

// JobHistory returns jobID's status_history rows, oldest first (spec.md
// §6.1 get_job: "job detail + recent logs").
func (s *JobStore) JobHistory(ctx context.Context, jobID string) ([]models.StatusHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, from_status, to_status, reason, created_at
		FROM status_history WHERE job_id = $1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("job_history", err)
	}
	defer rows.Close()

	var out []models.StatusHistoryEntry
	for rows.Next() {
		var e models.StatusHistoryEntry
		var from *models.JobStatus
		if err := rows.Scan(&e.ID, &e.JobID, &from, &e.ToStatus, &e.Reason, &e.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("job_history scan", err)
		}
		e.FromStatus = from
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, apperrors.NewDatabaseError("job_history", rows.Err())
	}
	return out, nil
}

// ListFilter narrows list_jobs (spec.md §6.1).
type ListFilter struct {
	Status      *models.JobStatus
	EntityType  *models.EntityType
	PriorityMin *int
}

// ListJobs implements spec.md §6.1 list_jobs, paginated.
func (s *JobStore) ListJobs(ctx context.Context, filter ListFilter, page, pageSize int) ([]models.Job, int, error) {
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
	if filter.PriorityMin != nil {
		args = append(args, *filter.PriorityMin)
		where = append(where, fmt.Sprintf("priority >= $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countArgs := append([]interface{}{}, args...)
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM jobs WHERE "+whereClause, countArgs...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewDatabaseError("list_jobs count", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, job_id, entity_type, job_type, entity_id, parent_entity_type, parent_entity_id,
		       status, priority, attempts, max_attempts, search_query, search_filters,
		       items_found, changes_detected, new_entities_found, changes_applied,
		       created_at, started_at, completed_at, next_run_at, error_message, initiated_by
		FROM jobs WHERE %s
		ORDER BY priority DESC, created_at ASC
		LIMIT $%d OFFSET $%d`, whereClause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseError("list_jobs", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(&job.ID, &job.JobID, &job.EntityType, &job.JobType, &job.EntityID, &job.ParentEntityType, &job.ParentEntityID,
			&job.Status, &job.Priority, &job.Attempts, &job.MaxAttempts, &job.SearchQuery, filtersScanner{&job.SearchFilters},
			&job.ItemsFound, &job.ChangesDetected, &job.NewEntitiesFound, &job.ChangesApplied,
			&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.NextRunAt, &job.ErrorMessage, &job.InitiatedBy); err != nil {
			return nil, 0, apperrors.NewDatabaseError("list_jobs scan", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewDatabaseError("list_jobs rows", err)
	}
	return jobs, total, nil
}

// LinkPendingChildren implements spec.md §4.G.1: when a community is
// created, any still-unparented pending job whose search_filters named
// that community by name is now linked to its entity ID. Returns the
// number of jobs linked.
func (s *JobStore) LinkPendingChildren(ctx context.Context, communityName, communityID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET parent_entity_id = $1
		WHERE status = 'pending'
		  AND parent_entity_type = 'community'
		  AND parent_entity_id IS NULL
		  AND search_filters->>'community_name' = $2`,
		communityID, communityName)
	if err != nil {
		return 0, apperrors.NewDatabaseError("link_pending_children", err)
	}
	return int(tag.RowsAffected()), nil
}

// HasActiveChildJob implements the dedupe half of spec.md §4.G.3: true
// iff a pending or running job of jobType already targets parentEntityID.
func (s *JobStore) HasActiveChildJob(ctx context.Context, parentEntityID string, entityType models.EntityType, jobType models.JobType) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE parent_entity_id = $1 AND entity_type = $2 AND job_type = $3
			  AND status IN ('pending', 'running')
		)`, parentEntityID, entityType, jobType,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.NewDatabaseError("has_active_child_job", err)
	}
	return exists, nil
}
