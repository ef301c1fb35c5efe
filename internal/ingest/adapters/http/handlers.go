package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/steadyops/ingestd/internal/ingest/app"
	"github.com/steadyops/ingestd/internal/ingest/app/commands"
)

// Handler exposes HTTP endpoints for batch ingestion.
type Handler struct {
	service *app.Service
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

// Register binds the ingest handlers to the provided router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/ingest", h.ingestBatch)
	r.Get("/v1/idempotency/stats", h.idempotencyStats)
}

func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var payload app.IngestBatchInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	result, err := h.service.IngestBatch(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, commands.ErrUnknownDataType), errors.Is(err, commands.ErrUnknownMode):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, commands.ErrReferenceDataUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) idempotencyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.IdempotencyStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
