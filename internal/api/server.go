package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/listingwatch/internal/metrics"
	"github.com/JakeFAU/listingwatch/internal/orchestrator"
	"github.com/JakeFAU/listingwatch/internal/scraper"
)

const (
	requestTimeout = 60 * time.Second
	readyTimeout   = 2 * time.Second
)

// BatchController starts and observes batches.
type BatchController interface {
	Start(force bool) (string, error)
	Cancel(id string) error
	Status(id string) (orchestrator.Status, error)
	Latest() (orchestrator.Status, error)
}

// Config holds the server options.
type Config struct {
	AuthEnabled bool
	APIKey      string
}

// Server wires HTTP handlers to the batch controller and store.
type Server struct {
	router     chi.Router
	controller BatchController
	store      scraper.Store
	sources    []scraper.Source
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	controller BatchController,
	store scraper.Store,
	sources []scraper.Source,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		controller: controller,
		store:      store,
		sources:    sources,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	q := newQueryHandler(store, sources, logger)
	r.Route("/v1", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", s.startBatch)
			r.Get("/latest", s.latestBatch)
			r.Route("/{batch_id}", func(r chi.Router) {
				r.Get("/", s.getBatch)
				r.Post("/cancel", s.cancelBatch)
			})
		})
		r.Get("/records", q.ListRecords)
		r.Get("/statistics", q.Statistics)
		r.Get("/audit", q.ListAudit)
		r.Get("/page-states/{source}", q.GetPageState)
		r.Get("/sources", q.ListSources)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startBatchRequest struct {
	Force bool `json:"force"`
}

func (s *Server) startBatch(w http.ResponseWriter, r *http.Request) {
	var req startBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id, err := s.controller.Start(req.Force)
	if err != nil {
		if errors.Is(err, orchestrator.ErrBatchRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("start batch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start batch")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"batch_id": id})
}

func (s *Server) latestBatch(w http.ResponseWriter, _ *http.Request) {
	status, err := s.controller.Latest()
	if err != nil {
		s.writeBatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": status})
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	status, err := s.controller.Status(chi.URLParam(r, "batch_id"))
	if err != nil {
		s.writeBatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": status})
}

func (s *Server) cancelBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batch_id")
	if err := s.controller.Cancel(id); err != nil {
		s.writeBatchError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"batch_id": id, "status": "cancel requested"})
}

func (s *Server) writeBatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, orchestrator.ErrBatchNotFound) {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	s.logger.Error("batch lookup failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "batch lookup failed")
}

type requestIDKey struct{}

// RequestID returns the request ID stored by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", RequestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
