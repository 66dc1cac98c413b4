package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/aiguide/pkg/usecase/query"
	"github.com/m-mizutani/aiguide/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	serviceName     = "aiguide"
	maxRequestBytes = 64 << 10
	shutdownTimeout = 10 * time.Second
	// slack for embedding, search and writing the response on top of the model calls
	writeTimeoutSlack = 30 * time.Second
)

//go:embed static/index.html
var indexHTML []byte

// Querier answers a recommendation query
type Querier interface {
	HandleQuery(ctx context.Context, query string, k int) (*query.Answer, error)
}

// Server is the HTTP front end of the recommendation pipeline
type Server struct {
	querier Querier
	metrics *metrics
	handler http.Handler
	logger  *slog.Logger
	mounts  map[string]http.Handler

	queryTimeout time.Duration
}

type Option func(*Server)

// WithLogger sets the base logger for request logging. Default is logging.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithQueryTimeout sets the per model call timeout of the pipeline. A turn makes up to two
// calls, so the response write deadline is derived from it. Default is
// query.DefaultGenerateTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithHandler mounts an additional handler such as the MCP endpoint at pattern
func WithHandler(pattern string, h http.Handler) Option {
	return func(s *Server) {
		s.mounts[pattern] = h
	}
}

func New(querier Querier, opts ...Option) *Server {
	s := &Server{
		querier: querier,
		metrics: newMetrics(),
		logger:  logging.Default(),
		mounts:  make(map[string]http.Handler),

		queryTimeout: query.DefaultGenerateTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.metrics.middleware)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	r.Post("/api/query", s.handleQuery)
	for pattern, h := range s.mounts {
		r.Handle(pattern, h)
	}

	s.handler = otelhttp.NewHandler(r, serviceName)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := s.httpServer(addr)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- goerr.Wrap(err, "failed to serve http", goerr.V("addr", addr))
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shutdown http server")
	}
	return <-errCh
}

func (s *Server) httpServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2*s.queryTimeout + writeTimeoutSlack,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return logging.With(context.Background(), s.logger) },
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With("request_id", chiMiddleware.GetReqID(r.Context()))

		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logging.With(r.Context(), logger)))

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type queryResponse struct {
	Response     string   `json:"response"`
	Images       []string `json:"images"`
	Insufficient bool     `json:"insufficient"`
	Fallback     bool     `json:"fallback"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req queryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.metrics.queriesTotal.WithLabelValues("invalid").Inc()
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	start := time.Now()
	answer, err := s.querier.HandleQuery(ctx, req.Query, req.K)
	if err != nil {
		if errors.Is(err, query.ErrInvalidQuery) {
			s.metrics.queriesTotal.WithLabelValues("invalid").Inc()
			writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		logging.From(ctx).Error("failed to handle query", "error", err)
		writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	s.metrics.queryDuration.Observe(time.Since(start).Seconds())
	s.metrics.queriesTotal.WithLabelValues(outcome(answer)).Inc()

	images := answer.Images
	if images == nil {
		images = []string{}
	}
	writeJSON(ctx, w, http.StatusOK, queryResponse{
		Response:     answer.Response,
		Images:       images,
		Insufficient: answer.Insufficient,
		Fallback:     answer.Fallback,
	})
}

func outcome(a *query.Answer) string {
	switch {
	case a.Fallback:
		return "fallback"
	case a.Insufficient:
		return "insufficient"
	default:
		return "answered"
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexHTML); err != nil {
		logging.From(r.Context()).Warn("failed to write index page", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.From(ctx).Warn("failed to write response", "error", err)
	}
}
