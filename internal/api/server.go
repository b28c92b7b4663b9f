// Package api exposes the chat backend over HTTP/JSON.
//
// Handlers depend on small consumer interfaces rather than concrete stores,
// so unit tests run against stubs and only the end-to-end tests need a real
// database and model.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadgate/leadgate/internal/history"
	"github.com/leadgate/leadgate/internal/lead"
	"github.com/leadgate/leadgate/internal/validate"
)

// TurnHandler runs one chat turn. Implemented by *conversation.Engine.
type TurnHandler interface {
	HandleTurn(ctx context.Context, input, sessionID string, requestType lead.RequestType) (string, error)
}

// HistoryService is the slice of the history store the API depends on.
type HistoryService interface {
	Bootstrap(ctx context.Context, sessionID string) (turns []history.Turn, created bool, err error)
}

// LeadService is the slice of the lead store the API depends on.
type LeadService interface {
	List(ctx context.Context) ([]*lead.Record, error)
	Update(ctx context.Context, sessionID string, status, remarks *string) error
	Delete(ctx context.Context, sessionID string) (bool, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger    *slog.Logger
	Engine    TurnHandler         // Required
	History   HistoryService      // Required
	Leads     LeadService         // Required
	Validator *validate.Validator // Required

	Pool        *pgxpool.Pool // Optional: nil disables the DB ping in /ready
	CORSOrigins []string      // Allowed origins for CORS
	TrustProxy  bool          // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst   int           // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("turn handler is required")
	}
	if cfg.History == nil {
		return nil, errors.New("history service is required")
	}
	if cfg.Leads == nil {
		return nil, errors.New("lead service is required")
	}
	if cfg.Validator == nil {
		return nil, errors.New("validator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{engine: cfg.Engine, validator: cfg.Validator, logger: logger}
	hh := &historyHandler{history: cfg.History, logger: logger}
	lh := &leadsHandler{leads: cfg.Leads, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", ch.send)
	mux.HandleFunc("GET /history", hh.get)
	mux.HandleFunc("GET /leads", lh.list)
	mux.HandleFunc("PATCH /chat-info", lh.update)
	mux.HandleFunc("DELETE /chat-info/{session_id}", lh.delete)

	// Rate limiter: per-IP token bucket (1 token/sec refill).
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes stay outside the middleware stack so load balancers
	// are never rate limited.
	topMux := http.NewServeMux()
	health := &healthHandler{pool: cfg.Pool, logger: logger}
	topMux.HandleFunc("GET /health", health.hello)
	topMux.HandleFunc("GET /ready", health.readiness)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
