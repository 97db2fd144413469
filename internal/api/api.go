// Package api provides the HTTP surface of the support bot.
//
// It exposes the messaging gateway's inbound webhook, the helpdesk status
// webhook, and a health check. Both webhooks follow an always-acknowledge
// contract: internal failures are logged and the upstream gateway still
// receives a 200 so it does not retry-storm.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/neuroclinic/supportbot/internal/models"
)

// Default server configuration constants
const (
	// DefaultAddr is the default listen address for the webhook server.
	DefaultAddr = ":8080"
	// DefaultReadTimeout bounds reading of an inbound webhook request.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds writing a webhook response. Outbound calls
	// to the AI provider and helpdesk happen within this window.
	DefaultWriteTimeout = 60 * time.Second
)

// Engine is the handoff state machine surface the server dispatches to.
type Engine interface {
	HandleInbound(ctx context.Context, sender, body string)
	HandleStatusEvent(ctx context.Context, ev models.StatusEvent) error
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address (overrides $API_ADDR).
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the webhook endpoints.
type Server struct {
	engine Engine
	addr   string
	http   *http.Server
}

// NewServer creates the webhook server around a handoff engine.
func NewServer(engine Engine, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = os.Getenv("API_ADDR")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{engine: engine, addr: cfg.Addr}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	return s
}

// Routes builds the server's handler mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.healthHandler)
	mux.HandleFunc("/message", s.messageHandler)
	mux.HandleFunc("/chatwoot_webhook", s.chatwootWebhookHandler)
	return mux
}

// Run starts the server and blocks until it exits.
func (s *Server) Run() error {
	slog.Info("Server.Run: webhook server listening", "addr", s.addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
