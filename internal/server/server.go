// Package server exposes the AI service, stored analyses and learning progress over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Taichi-iskw/clipquiz/internal/repository/analysis"
	"github.com/Taichi-iskw/clipquiz/internal/service/ai"
	"github.com/Taichi-iskw/clipquiz/internal/service/progress"
)

const (
	defaultMaxUploadBytes = 50 << 20
	shutdownTimeout       = 30 * time.Second
)

// Config holds transport settings
type Config struct {
	Addr           string
	MaxUploadBytes int64
	AllowedOrigins []string
	// AccessLog receives combined-format access logs; nil disables them
	AccessLog io.Writer
}

// Dependencies are the collaborators behind the endpoints.
// Analyses and Progress are nil when no database is configured.
type Dependencies struct {
	AI       ai.Service
	Analyses analysis.Repository
	Progress progress.Service
	Logger   logrus.FieldLogger
}

// Server is the HTTP front of clipquiz
type Server struct {
	cfg      Config
	endpoint *Handler
	handler  http.Handler
	logger   logrus.FieldLogger
}

// New builds the router and middleware chain
func New(cfg Config, deps Dependencies) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	h := &Handler{
		ai:             deps.AI,
		analyses:       deps.Analyses,
		progress:       deps.Progress,
		logger:         deps.Logger,
		maxUploadBytes: cfg.MaxUploadBytes,
		now:            time.Now,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/analyze-video", h.AnalyzeVideo).Methods(http.MethodPost)
	api.HandleFunc("/transcribe", h.Transcribe).Methods(http.MethodPost)
	api.HandleFunc("/ai/provider", h.GetProvider).Methods(http.MethodGet)
	api.HandleFunc("/ai/provider", h.SetProvider).Methods(http.MethodPut)
	api.HandleFunc("/ai/cost", h.EstimateCost).Methods(http.MethodGet)
	api.HandleFunc("/videos/{id}/analysis", h.GetAnalysis).Methods(http.MethodGet)
	api.HandleFunc("/progress/checkpoints", h.RecordCheckpoint).Methods(http.MethodPost)
	api.HandleFunc("/progress/{userID}/stats", h.Stats).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	var handler http.Handler = cors(r)
	if cfg.AccessLog != nil {
		handler = handlers.CombinedLoggingHandler(cfg.AccessLog, handler)
	}

	return &Server{cfg: cfg, endpoint: h, handler: handler, logger: deps.Logger}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is canceled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// uploads up to the cap and multi-session Spark analyses need generous limits
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.cfg.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped cleanly")
	return nil
}
