package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/nerrad567/keygrid-core/internal/core"
	"github.com/nerrad567/keygrid-core/internal/infrastructure/config"
	"github.com/nerrad567/keygrid-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// socketMode restricts the control socket to its owner.
const socketMode = 0o600

// Connectivity reports whether an optional link is up. *mqtt.Client
// satisfies it.
type Connectivity interface {
	IsConnected() bool
}

// WriteStats reports telemetry write counters. *influxdb.Client
// satisfies it.
type WriteStats interface {
	Connectivity
	Written() uint64
	Failed() uint64
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.SocketConfig
	Logger *logging.Logger
	Core   *core.Manager

	// Optional, reported by /metrics.
	MQTT      Connectivity
	Telemetry WriteStats
	DB        *sql.DB

	Version string
}

// Server serves the control protocol.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.SocketConfig
	logger    *logging.Logger
	core      *core.Manager
	mqtt      Connectivity
	telemetry WriteStats
	db        *sql.DB
	version   string
	startTime time.Time

	handlers map[string]handlerFunc
	hub      *Hub
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	unsub    func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, core manager)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Core == nil {
		return nil, fmt.Errorf("core manager is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		core:      deps.Core,
		mqtt:      deps.MQTT,
		telemetry: deps.Telemetry,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}
	s.handlers = s.handlerTable()
	s.hub = NewHub(deps.Config, deps.Logger)
	return s, nil
}

// Handler returns the HTTP handler serving every route. Start uses it;
// tests can mount it on an httptest server.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start listens on the configured unix socket.
//
// A stale socket file left by a previous run is removed first. Session
// events are relayed to subscribed WebSocket clients until Close.
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the socket cannot be created
func (s *Server) Start(ctx context.Context) error {
	if err := removeStaleSocket(s.cfg.Path); err != nil {
		return err
	}
	ln, err := net.Listen("unix", s.cfg.Path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Path, err)
	}
	if err := os.Chmod(s.cfg.Path, socketMode); err != nil {
		ln.Close()
		return fmt.Errorf("restricting socket permissions: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln. Start calls it for the unix socket.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	s.unsub = s.core.Events().Subscribe(s.hub.Broadcast)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("control socket listening", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control socket error", "error", err)
		}
	}()
	return nil
}

// Close gracefully shuts down the server and removes the socket file.
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
	if s.unsub != nil {
		s.unsub()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("control socket shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down control socket: %w", err)
	}
	if s.listener != nil && s.listener.Addr().Network() == "unix" {
		_ = os.Remove(s.cfg.Path)
	}
	return nil
}

// HealthCheck verifies the server is running.
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

// removeStaleSocket deletes a leftover socket at path. Anything other than
// a socket is left alone and reported.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking socket path: %w", err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("socket path %s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	return nil
}
