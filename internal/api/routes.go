package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yegors/livecap/internal/config"
	"github.com/yegors/livecap/internal/session"
	"github.com/yegors/livecap/internal/storage/sqlite"
	"github.com/yegors/livecap/internal/transcript"
	"github.com/yegors/livecap/internal/websocket"
	"github.com/yegors/livecap/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(sess *session.Session, reconciler *transcript.Reconciler, storage *sqlite.TranscriptStorage, wsServer *websocket.Server, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(sess, reconciler, storage, wsServer, config, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	router.Route("/api/v1", func(router chi.Router) {
		// Transcript routes
		router.Get("/transcripts", r.handler.GetTranscripts)
		router.Get("/transcripts/export", r.handler.ExportTranscripts)
		router.Post("/transcripts/import", r.handler.ImportTranscripts)
		router.Post("/transcripts/clear", r.handler.ClearTranscripts)
		router.Delete("/transcripts", r.handler.DeleteTranscripts)

		// Session control
		router.Post("/session/start", r.handler.StartSession)
		router.Post("/session/stop", r.handler.StopSession)
		router.Get("/session", r.handler.GetSessionStatus)

		// WebSocket route
		router.Get("/ws", r.handler.HandleWebSocket)

		// Health check
		router.Get("/health", r.handler.GetHealth)

		// Configuration
		router.Get("/config", r.handler.GetConfig)
	})

	router.Handle("/metrics", promhttp.Handler())

	// Serve the caption UI from the configured directory
	if r.config.Server.StaticFilesDir != "" {
		staticHandler := NewStaticFileHandler(r.config.Server.StaticFilesDir, r.logger)
		router.Handle("/*", staticHandler)
	}

	return router
}
