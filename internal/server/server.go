// Package server exposes the interview driver over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/spigell/ai-interviewer/internal/interview"
	"github.com/spigell/ai-interviewer/internal/observe"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Interviewer is the conversation driver used by the handlers.
type Interviewer interface {
	Begin(ctx context.Context, params interview.StartParams) (*interview.Reply, error)
	Resume(ctx context.Context, sessionID, answer string) (*interview.Reply, error)
	Snapshot(ctx context.Context, sessionID string) (*interview.Record, error)
	MaxStepLimit() int
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins    []string
	DebugEndpoints bool
	// MetricsHandler is mounted on /metrics when set.
	MetricsHandler http.Handler
}

// Server routes HTTP requests to the driver.
type Server struct {
	driver  Interviewer
	store   Pinger
	opts    Options
	logger  *zap.Logger
	metrics *observe.Metrics
	handler http.Handler
}

// New builds the server and its middleware chain.
func New(driver Interviewer, store Pinger, opts Options, logger *zap.Logger, metrics *observe.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		driver:  driver,
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}

	var handler http.Handler = s.routes()
	handler = s.accessLog(handler)
	handler = s.recovery(handler)

	if len(opts.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
		}).Handler(handler)
	}

	s.handler = handler
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /start_interview", s.handleStart)
	mux.HandleFunc("POST /continue_interview", s.handleContinue)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	if s.opts.DebugEndpoints {
		mux.HandleFunc("GET /debug/{session_id}", s.handleDebug)
	}
	if s.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.opts.MetricsHandler)
	}

	return mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", zap.String("addr", listener.Addr().String()))
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
