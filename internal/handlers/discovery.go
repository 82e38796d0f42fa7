package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicscribe-backend/internal/models"
	"civicscribe-backend/internal/services"
	"civicscribe-backend/internal/worker"
)

type DiscoveryHandler struct {
	discovery     *services.DiscoveryService
	pool          *worker.Pool
	defaultMaxNew int
}

func NewDiscoveryHandler(discovery *services.DiscoveryService, pool *worker.Pool, defaultMaxNew int) *DiscoveryHandler {
	return &DiscoveryHandler{discovery: discovery, pool: pool, defaultMaxNew: defaultMaxNew}
}

// Discover serves POST /api/v1/discover: list a channel's uploads and queue
// the ones not yet cached or queued.
func (h *DiscoveryHandler) Discover(w http.ResponseWriter, r *http.Request) {
	var req models.DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.Channel == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "channel is required", r))
		return
	}
	if req.MaxNew <= 0 {
		req.MaxNew = h.defaultMaxNew
	}

	result, err := h.discovery.Discover(r.Context(), req.Channel, req.MaxNew)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResp("DISCOVERY_FAILED", err.Error(), r))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// VideoStatus serves GET /api/v1/queue/{videoID}: reports whether a video is
// cached, queued, or unknown.
func (h *DiscoveryHandler) VideoStatus(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	if !videoIDRegex.MatchString(videoID) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid video id", r))
		return
	}

	status, err := h.discovery.VideoStatus(r.Context(), videoID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("STATUS_FAILED", err.Error(), r))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// QueueStats serves GET /api/v1/queue/stats.
func (h *DiscoveryHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.discovery.QueueStats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("QUEUE_STATS_FAILED", err.Error(), r))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RunQueue serves POST /api/v1/queue/run: push pending queue entries onto the
// worker queue for batch acquisition.
func (h *DiscoveryHandler) RunQueue(w http.ResponseWriter, r *http.Request) {
	var req models.QueueRunRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Limit <= 0 {
		req.Limit = h.defaultMaxNew
	}

	enqueued, err := h.pool.EnqueuePending(r.Context(), req.Limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("QUEUE_RUN_FAILED", err.Error(), r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"enqueued": enqueued})
}
