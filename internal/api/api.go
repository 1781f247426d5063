// Package api provides HTTP handlers and the API server for PulseCoach.
//
// It exposes the WHOOP OAuth callback plus the scheduler-facing endpoints that
// trigger the daily metrics sweep and the proactive check-in sweep.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pulsecoach/internal/syncer"
)

// Defaults for API server configuration.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	defaultRequestTimeout  = 5 * time.Minute
)

// OAuthCompleter finishes a WHOOP OAuth linking flow.
type OAuthCompleter interface {
	CompleteLink(ctx context.Context, code, state string) (string, error)
}

// Notifier tells a user their account was linked.
type Notifier interface {
	NotifyLinked(userID string) error
}

// Syncer runs the daily metrics sweep.
type Syncer interface {
	SyncAll(ctx context.Context, date string) (syncer.Report, error)
	Today() string
}

// CheckIner runs the proactive check-in sweep.
type CheckIner interface {
	CheckInAll(ctx context.Context) error
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server routes HTTP requests to the linking flow and the sweep triggers.
type Server struct {
	oauth    OAuthCompleter
	notifier Notifier
	syncer   Syncer
	checkIn  CheckIner
	httpSrv  *http.Server
}

// NewServer creates an API server over the given dependencies.
func NewServer(oauth OAuthCompleter, notifier Notifier, sync Syncer, checkIn CheckIner, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		oauth:    oauth,
		notifier: notifier,
		syncer:   sync,
		checkIn:  checkIn,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.rootHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/whoop/callback", s.whoopCallbackHandler)
	mux.HandleFunc("/scheduled/update-health-data", s.updateHealthDataHandler)
	mux.HandleFunc("/scheduled/check-in", s.checkInHandler)

	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: mux}
	slog.Debug("Server created", "addr", cfg.Addr)
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Server.Start: listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server.Shutdown: stopping")
	return s.httpSrv.Shutdown(ctx)
}
