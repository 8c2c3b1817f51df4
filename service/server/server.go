package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/brojonat/tokensmith/service/metrics"
	natspkg "github.com/brojonat/tokensmith/service/nats"
	"github.com/brojonat/tokensmith/service/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the token service.
type Server struct {
	addr       string
	session    *session.Session
	subscriber natspkg.Subscriber
	renderer   *TemplateRenderer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server

	// request contexts derive from baseCtx so open streams end on shutdown
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a new HTTP server with the given dependencies.
// The subscriber is optional - if nil, the SSE endpoint won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, sess *session.Session, subscriber natspkg.Subscriber, m *metrics.Metrics, logger *slog.Logger) *Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		baseCtx:    baseCtx,
		cancel:     cancel,
		addr:       addr,
		session:    sess,
		subscriber: subscriber,
		metrics:    m,
		logger:     logger,
	}
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Session and transaction routes
	route("GET /api/v1/session", "/api/v1/session", handleGetSession(s.session))
	route("POST /api/v1/connect", "/api/v1/connect", handleConnect(s.session, s.logger))
	route("POST /api/v1/tokens", "/api/v1/tokens", handleCreateToken(s.session, s.logger))
	route("POST /api/v1/tokens/{mint}/mint", "/api/v1/tokens/{mint}/mint", handleMintTokens(s.session, s.logger))
	route("POST /api/v1/transfers", "/api/v1/transfers", handleTransfer(s.session, s.logger))

	// SSE streaming endpoint (if a subscriber is configured)
	if s.subscriber != nil {
		route("GET /api/v1/stream/submissions", "/api/v1/stream/submissions",
			handleStreamSubmissions(s.subscriber, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("NATS subscriber not configured, streaming endpoint disabled")
	}

	// HTML page (if template renderer is configured)
	if s.renderer != nil {
		mux.HandleFunc("GET /", handleIndexPage(s.renderer, s.session, s.subscriber != nil))
		s.logger.Info("HTML page endpoint enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		BaseContext:  func(net.Listener) context.Context { return s.baseCtx },
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // wallet approval can take a while
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// End SSE streams first so they don't hold the shutdown open
	s.cancel()
	if s.subscriber != nil {
		s.subscriber.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
