package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/talktrack/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/talktrack/internal/api/middlewares"
	"github.com/markdave123-py/talktrack/internal/config"
	"github.com/markdave123-py/talktrack/internal/logger"
	"github.com/markdave123-py/talktrack/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        logger.AppLogger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, files *services.FileService, log logger.AppLogger) *Server {
	log = log.With(slog.String("service", "http"))
	fileHandler := handlers.NewFileHandler(files, cfg.MaxUploadMB, log)
	healthHandler := handlers.NewHealthHandler(files.QueueEnabled())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Get("/health", healthHandler.Health)
		api.Get("/fileStatus", fileHandler.FileStatus)
		api.Get("/files/{id}/transcript", fileHandler.Transcript)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
			protected.Post("/upload", fileHandler.Upload)
			protected.Post("/files/{id}/reprocess", fileHandler.Reprocess)
			protected.Post("/files/{id}/search", fileHandler.Search)
		})
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, log: log}
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(log logger.AppLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("elapsed", time.Since(started)))
		})
	}
}
