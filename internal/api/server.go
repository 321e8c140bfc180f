package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NTillmann/davinci-fireplace-ha/internal/bridges/ifc"
	"github.com/NTillmann/davinci-fireplace-ha/internal/fireplace"
	"github.com/NTillmann/davinci-fireplace-ha/internal/infrastructure/config"
	"github.com/NTillmann/davinci-fireplace-ha/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Fireplace   config.FireplaceConfig
	Logger      *logging.Logger
	Coordinator *ifc.Coordinator
	History     *fireplace.HistoryRepository // optional: history endpoint returns 503 when nil
	Version     string
}

// Server is the HTTP API server for the fireplace daemon.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// hub. The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	fpCfg       config.FireplaceConfig
	logger      *logging.Logger
	coordinator *ifc.Coordinator
	history     *fireplace.HistoryRepository
	version     string
	server      *http.Server
	hub         *Hub
	storeSub    string             // state store subscription handle
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, coordinator)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		fpCfg:       deps.Fireplace,
		logger:      deps.Logger,
		coordinator: deps.Coordinator,
		history:     deps.History,
		version:     deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes to the state store for
// real-time broadcast, and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Relay every state change to subscribed WebSocket clients.
	s.storeSub = s.coordinator.Subscribe(func(snap fireplace.Snapshot, changes []fireplace.Change) {
		s.hub.Broadcast(ChannelState, stateEvent(snap, changes))
	})

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.storeSub != "" {
		s.coordinator.Unsubscribe(s.storeSub)
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
		return fmt.Errorf("api server not started")
	}

	return nil
}

// BroadcastConnectionState relays a connection state transition to
// WebSocket clients subscribed to the connection channel. Safe to call
// before Start (no-op without a hub).
func (s *Server) BroadcastConnectionState(state ifc.ConnectionState) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(ChannelConnection, map[string]string{"state": state.String()})
}
