package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"workout-import/internal/config"
	"workout-import/internal/worker"
)

// maxUploadBytes bounds the request body of a single upload.
const maxUploadBytes = 64 << 20

// UploadsHandler accepts activity files and queues them for import
type UploadsHandler struct {
	worker *worker.Worker
	config *config.Config
	logger *slog.Logger
}

// NewUploadsHandler creates a new uploads handler
func NewUploadsHandler(w *worker.Worker, cfg *config.Config) *UploadsHandler {
	return &UploadsHandler{
		worker: w,
		config: cfg,
		logger: slog.Default(),
	}
}

// HandleUpload handles POST /uploads?user_id=...&filename=...
// The request body is the raw file.
//
// Authentication: Requires Authorization header
func (h *UploadsHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !authorized(r, h.config.InternalAPIKey) {
		h.logger.Warn("Unauthorized upload request", "has_auth", r.Header.Get("Authorization") != "")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()
	userID, err := uuid.Parse(query.Get("user_id"))
	if err != nil {
		http.Error(w, "Invalid user_id parameter", http.StatusBadRequest)
		return
	}
	filename := query.Get("filename")
	if filename == "" {
		http.Error(w, "Missing filename parameter", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	defer r.Body.Close()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Error("Failed to read upload body", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "Empty file", http.StatusBadRequest)
		return
	}

	file, job, err := h.worker.Enqueue(r.Context(), userID, filename, body)
	if err != nil {
		h.logger.Error("Failed to enqueue upload", "filename", filename, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, http.StatusAccepted, map[string]any{
		"job_id":  job.ID,
		"file_id": file.ID,
		"status":  job.Status,
	})
}
