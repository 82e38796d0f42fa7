package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"civicscribe-backend/internal/models"
	"civicscribe-backend/internal/services"
)

type TranscriptHandler struct {
	transcripts *services.TranscriptService
}

func NewTranscriptHandler(transcripts *services.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

var videoIDRegex = regexp.MustCompile(`^[\w-]{11}$`)

// Get serves GET /api/v1/transcripts/{videoID}. The first request for a video
// triggers acquisition; later requests are served from the cache.
func (h *TranscriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	if !videoIDRegex.MatchString(videoID) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid video id", r))
		return
	}

	committee := r.URL.Query().Get("committee")

	record, err := h.transcripts.Get(r.Context(), videoID, committee)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResp("ACQUISITION_FAILED", err.Error(), r))
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}
