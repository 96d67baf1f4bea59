package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"workout-import/internal/config"
	"workout-import/internal/database"
	"workout-import/internal/worker"
)

// JobsHandler triggers worker invocations and exposes job rows
type JobsHandler struct {
	db     *database.DB
	worker *worker.Worker
	config *config.Config
	logger *slog.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(db *database.DB, w *worker.Worker, cfg *config.Config) *JobsHandler {
	return &JobsHandler{
		db:     db,
		worker: w,
		config: cfg,
		logger: slog.Default(),
	}
}

// HandleProcess handles POST /process-import-jobs. It runs one invocation
// synchronously and reports which jobs it claimed and how they ended.
//
// Authentication: Requires Authorization header
func (h *JobsHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !authorized(r, h.config.InternalAPIKey) {
		h.logger.Warn("Unauthorized process request", "has_auth", r.Header.Get("Authorization") != "")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.worker.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("Import invocation failed", "error", err)
		writeJSON(w, h.logger, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, result)
}

// HandleGetJob handles GET /jobs/{id}
//
// Authentication: Requires Authorization header
func (h *JobsHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !authorized(r, h.config.InternalAPIKey) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.db.GetImportJob(id)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to get import job", "job_id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, job)
}

func authorized(r *http.Request, apiKey string) bool {
	return apiKey != "" && r.Header.Get("Authorization") == "Bearer "+apiKey
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}
