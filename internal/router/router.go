package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"civicscribe-backend/internal/handlers"
	"civicscribe-backend/internal/middleware"
)

func New(
	transcriptHandler *handlers.TranscriptHandler,
	discoveryHandler *handlers.DiscoveryHandler,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)

	// Discovery hits the upstream listing API; keep callers honest.
	discoverLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Transcript Routes ────
		r.Get("/transcripts/{videoID}", transcriptHandler.Get)

		// ──── Discovery / Queue Routes ────
		r.Group(func(r chi.Router) {
			r.Use(discoverLimiter.Middleware)
			r.Post("/discover", discoveryHandler.Discover)
		})
		r.Get("/queue/stats", discoveryHandler.QueueStats)
		r.Post("/queue/run", discoveryHandler.RunQueue)
		r.Get("/queue/{videoID}", discoveryHandler.VideoStatus)
	})

	return r
}
