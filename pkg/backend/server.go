package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"kernelretry/pkg/backend/ratelimit"
	"kernelretry/pkg/logger"
	"kernelretry/pkg/replies"
)

// Config backend configuration
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxConnections  int

	// APIKey expected in the Authorization header. Empty disables auth.
	APIKey              string
	RequestsPerSecond   float64
	Burst               int
	MaxConcurrentPerKey int
	// MaxFailedAuth wrong keys from one client trigger a lockout of
	// AuthLockout. Zero disables the lockout.
	MaxFailedAuth int
	AuthLockout   time.Duration
	// Latency simulates model processing time
	Latency time.Duration
	Model   string
}

// Server is a local stand-in for an OpenAI-compatible completion backend. It
// throttles and rejects requests the way hosted backends do so retry policies
// can be exercised end to end.
type Server struct {
	cfg         *Config
	log         logger.Logger
	replies     replies.Service
	rateLimiter *ratelimit.KeyRateLimiter
	conLimiter  *ratelimit.ConcurrencyLimiter
	lockout     *ratelimit.AuthLockout
	httpServer  *http.Server

	// State
	mu           sync.Mutex
	listener     net.Listener
	currentConns atomic.Int32
	served       atomic.Int64
	rejected     atomic.Int64
}

func NewServer(cfg *Config, log logger.Logger, replies replies.Service, ctx context.Context) *Server {
	srv := &Server{
		cfg:        cfg,
		log:        log.WithComponent("backend"),
		replies:    replies,
		conLimiter: ratelimit.NewConcurrencyLimiter(cfg.MaxConcurrentPerKey),
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		srv.rateLimiter = ratelimit.NewKeyRateLimiter(cfg.RequestsPerSecond, burst, time.Hour)
	}

	if cfg.MaxFailedAuth > 0 && cfg.AuthLockout > 0 {
		srv.lockout = ratelimit.NewAuthLockout(cfg.MaxFailedAuth, cfg.AuthLockout)
	}

	srv.httpServer = &http.Server{
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	return srv
}

// Handler returns the HTTP routes of the backend
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", s.handleCompletion)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) Run() error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("backend started", map[string]interface{}{
		"address":        listener.Addr().String(),
		"rate_limit_rps": s.cfg.RequestsPerSecond,
		"burst":          s.cfg.Burst,
		"auth":           s.cfg.APIKey != "",
	})

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once Run has started listening
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("starting graceful shutdown", nil)

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	s.log.Info("shutdown complete", map[string]interface{}{
		"served":   s.served.Load(),
		"rejected": s.rejected.Load(),
	})
	return nil
}
