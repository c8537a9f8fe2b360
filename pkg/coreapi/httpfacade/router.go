// Package httpfacade is an illustrative adapter showing how a host HTTP
// layer — explicitly out of scope per spec.md §1 — would mount
// pkg/coreapi's command surface. It is not the host application: no
// auth, tracing, or rate limiting lives here, only the one-command-per-
// route wiring and JSON marshaling.
package httpfacade

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/jordigilh/realestate-collector/pkg/coreapi"
)

// NewRouter mounts facade's commands onto a chi.Router with permissive
// development CORS defaults (the host application is expected to
// tighten these for its own deployment).
func NewRouter(facade *coreapi.Facade) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))

	h := &handler{facade: facade}
	r.Post("/jobs", h.enqueueJob)
	r.Get("/jobs", h.listJobs)
	r.Get("/jobs/{jobID}", h.getJob)
	r.Post("/jobs/{jobID}/cancel", h.cancelJob)
	r.Post("/jobs/execute-pending", h.executePending)

	r.Get("/changes", h.listChanges)
	r.Post("/changes/{changeID}/review", h.reviewChange)
	r.Post("/changes/review-bulk", h.reviewBulk)
	r.Get("/changes/stats", h.changeStats)

	r.Get("/coverage", h.coverageReport)
	r.Post("/coverage/backfill", h.backfill)

	return r
}

type handler struct {
	facade *coreapi.Facade
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
