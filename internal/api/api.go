// Package api provides the HTTP server for triagebot.
//
// It exposes the messaging webhooks, a health probe for the hosting
// platform, and a read-only endpoint listing the qualified leads.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/viatel/triagebot/internal/messaging"
	"github.com/viatel/triagebot/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server routes webhook deliveries to the channel services and serves the
// operator-facing endpoints.
type Server struct {
	addr        string
	telegramSvc *messaging.TelegramService
	twilioSvc   *messaging.TwilioService // nil when the channel is not configured
	store       store.Store
	httpServer  *http.Server
}

// NewServer creates a Server. twilioSvc may be nil.
func NewServer(telegramSvc *messaging.TelegramService, twilioSvc *messaging.TwilioService, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		addr:        cfg.Addr,
		telegramSvc: telegramSvc,
		twilioSvc:   twilioSvc,
		store:       st,
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.healthHandler)
	mux.HandleFunc("/webhook/telegram", s.telegramWebhookHandler)
	mux.HandleFunc("/webhook/twilio", s.twilioWebhookHandler)
	mux.HandleFunc("/leads", s.leadsHandler)
	return mux
}

// Run starts the server and blocks until the context is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
