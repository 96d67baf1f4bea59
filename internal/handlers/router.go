package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"workout-import/internal/database"
	"workout-import/internal/metrics"
	"workout-import/internal/middleware"
)

// NewRouter wires the HTTP API. Every route is wrapped with request metrics.
func NewRouter(db *database.DB, jobs *JobsHandler, uploads *UploadsHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Method(http.MethodPost, "/process-import-jobs", middleware.WrapHandler(metrics.EndpointProcessImportJobs, jobs.HandleProcess))
	r.Method(http.MethodPost, "/uploads", middleware.WrapHandler(metrics.EndpointUploads, uploads.HandleUpload))
	r.Method(http.MethodGet, "/jobs/{id}", middleware.WrapHandler(metrics.EndpointGetJob, jobs.HandleGetJob))

	r.Method(http.MethodGet, "/health", middleware.WrapHandler(metrics.EndpointHealth, func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(); err != nil {
			http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	return r
}
