package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/rrconverter/internal/connectivity"
	"github.com/nerrad567/rrconverter/internal/hub"
	"github.com/nerrad567/rrconverter/internal/infrastructure/config"
	"github.com/nerrad567/rrconverter/internal/infrastructure/logging"
	"github.com/nerrad567/rrconverter/internal/infrastructure/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Feed is the part of the distribution hub the server uses.
// *hub.Hub satisfies it.
type Feed interface {
	Subscribe() *hub.Subscription
	SubscriberCount() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Hub     Feed
	State   connectivity.State // optional, reported by /api/v1/status
	Metrics *metrics.Metrics   // optional
	Mode    string             // source mode reported by /api/v1/status
	Version string
}

// Server is the HTTP server for the subscriber feed and status endpoints.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	hub     Feed
	state   connectivity.State
	metrics *metrics.Metrics
	mode    string
	version string

	server   *http.Server
	listener net.Listener
	baseCtx  context.Context
	cancel   context.CancelFunc // ends every WebSocket client on Close()
	clients  sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, hub)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidDeps)
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("%w: hub is required", ErrInvalidDeps)
	}

	wsCfg := deps.WS
	if wsCfg.Path == "" {
		wsCfg.Path = "/ws"
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   wsCfg,
		logger:  deps.Logger,
		hub:     deps.Hub,
		state:   deps.State,
		metrics: deps.Metrics,
		mode:    deps.Mode,
		version: deps.Version,
	}, nil
}

// Handler returns the routed HTTP handler without starting a listener.
// WebSocket clients served through it live until the server is closed.
func (s *Server) Handler() http.Handler {
	s.ensureContext(context.Background())
	return s.buildRouter()
}

// Start binds the listener and serves HTTP in a background goroutine.
// The server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for WebSocket client lifetimes
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.ensureContext(ctx)

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrListenFailed, addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		// ReadTimeout and WriteTimeout are left unset: they would also apply
		// to hijacked WebSocket connections, which set their own deadlines.
	}

	s.logger.Info("API server starting", "address", ln.Addr().String(), "ws_path", s.wsCfg.Path)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

func (s *Server) ensureContext(parent context.Context) context.Context {
	if s.cancel != nil {
		return s.baseCtx
	}
	s.baseCtx, s.cancel = context.WithCancel(parent)
	return s.baseCtx
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the API server.
//
// WebSocket clients are disconnected first, then in-flight requests get up
// to 10 seconds to complete.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.clients.Wait()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return ErrNotStarted
	}

	return nil
}
