package httpfacade

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
	"github.com/jordigilh/realestate-collector/pkg/changeledger"
	"github.com/jordigilh/realestate-collector/pkg/coreapi"
	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/jordigilh/realestate-collector/pkg/orchestrator"
)

// statusFor maps a command error onto an HTTP status, using the
// AppError's own classification when present (unwrapping a
// pkg/corekinds.Result, which carries one) and falling back to 500 for
// anything this adapter doesn't recognize (spec.md §7's taxonomy is a
// classification scheme, not an HTTP contract — the mapping lives here,
// at the edge, not in the core).
func statusFor(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func (h *handler) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var spec models.JobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	jobID, err := h.facade.EnqueueJob(r.Context(), spec)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"job_id": jobID})
}

func (h *handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	status, err := h.facade.CancelJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *handler) executePending(w http.ResponseWriter, r *http.Request) {
	maxCount, _ := strconv.Atoi(r.URL.Query().Get("max_count"))
	started, err := h.facade.ExecutePending(r.Context(), maxCount)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"job_ids": started})
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter orchestrator.ListFilter
	if v := q.Get("status"); v != "" {
		s := models.JobStatus(v)
		filter.Status = &s
	}
	if v := q.Get("entity_type"); v != "" {
		e := models.EntityType(v)
		filter.EntityType = &e
	}
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	jobs, total, err := h.facade.ListJobs(r.Context(), filter, page, pageSize)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "total": total, "page": page, "page_size": pageSize})
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	detail, err := h.facade.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handler) listChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter changeledger.ListFilter
	if v := q.Get("status"); v != "" {
		s := models.ChangeStatus(v)
		filter.Status = &s
	}
	if v := q.Get("entity_type"); v != "" {
		e := models.EntityType(v)
		filter.EntityType = &e
	}
	if v := q.Get("job_id"); v != "" {
		filter.JobID = &v
	}
	page, _ := strconv.Atoi(q.Get("page"))

	changes, total, err := h.facade.ListChanges(r.Context(), filter, page, 0)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"changes": changes, "total": total, "page": page})
}

type reviewRequest struct {
	Decision models.ReviewDecision `json:"decision"`
	Notes    *string               `json:"notes,omitempty"`
}

func (h *handler) reviewChange(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	change, err := h.facade.ReviewChange(r.Context(), chi.URLParam(r, "changeID"), req.Decision, reviewerFromRequest(r), req.Notes)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

type reviewBulkRequest struct {
	ChangeIDs []string              `json:"change_ids"`
	Decision  models.ReviewDecision `json:"decision"`
	Notes     *string               `json:"notes,omitempty"`
}

func (h *handler) reviewBulk(w http.ResponseWriter, r *http.Request) {
	var req reviewBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := h.facade.ReviewBulk(r.Context(), req.ChangeIDs, req.Decision, reviewerFromRequest(r), req.Notes)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) changeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.facade.ChangeStats(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) coverageReport(w http.ResponseWriter, r *http.Request) {
	scope := coreapi.CoverageScope(r.URL.Query().Get("scope"))
	report, err := h.facade.CoverageReport(r.Context(), scope)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type backfillRequest struct {
	Scope    coreapi.CoverageScope `json:"scope"`
	Priority int                   `json:"priority"`
	DryRun   bool                  `json:"dry_run"`
}

func (h *handler) backfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := h.facade.Backfill(r.Context(), req.Scope, req.Priority, req.DryRun)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// reviewerFromRequest is a placeholder for the host's own auth/identity
// layer (out of scope per spec.md §1); it reads a header so the adapter
// is exercisable without a real auth stack wired in.
func reviewerFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Reviewer"); v != "" {
		return v
	}
	return "unknown"
}
