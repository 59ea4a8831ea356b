package stream

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudocode-ai/Roo-Code-server/config"
	"github.com/sudocode-ai/Roo-Code-server/errors"
	"github.com/sudocode-ai/Roo-Code-server/host"
	"github.com/sudocode-ai/Roo-Code-server/message"
	"github.com/sudocode-ai/Roo-Code-server/metric"
)

// writeTimeout bounds a single frame write so one stalled peer cannot
// wedge a broadcast pass.
const writeTimeout = 10 * time.Second

type serverState int32

const (
	stateStopped serverState = iota
	stateStarting
	stateListening
	stateStopping
)

func (s serverState) String() string {
	switch s {
	case stateStopped:
		return "stopped"
	case stateStarting:
		return "starting"
	case stateListening:
		return "listening"
	case stateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Health is a point-in-time snapshot of server status.
type Health struct {
	Running     bool          `json:"running"`
	BoundPort   int           `json:"boundPort,omitempty"`
	Connections int           `json:"connections"`
	Errors      int64         `json:"errors"`
	Uptime      time.Duration `json:"uptime"`
}

// Server accepts WebSocket clients, fans Stream Events out to them, and
// dispatches inbound task commands to the host. One Server owns one
// listener; instances are independent.
type Server struct {
	logger   *slog.Logger
	registry *Registry
	metrics  *serverMetrics

	// lifecycleMu serializes Start and Stop.
	lifecycleMu sync.Mutex
	// mu guards cfg, state, listener, httpServer, boundPort, handler
	// and startedAt.
	mu         sync.RWMutex
	cfg        config.Server
	state      serverState
	listener   net.Listener
	httpServer *http.Server
	boundPort  int
	handler    host.TaskCommandHandler
	startedAt  time.Time

	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc
	heartbeatStop   chan struct{}
	wg              sync.WaitGroup

	errorCount atomic.Int64

	upgrader websocket.Upgrader
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics registers the server's instruments on the given registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(s *Server) {
		s.metrics = newServerMetrics(registry)
	}
}

// WithCommandHandler sets the inbound task-command handler.
func WithCommandHandler(h host.TaskCommandHandler) Option {
	return func(s *Server) {
		s.handler = h
	}
}

// NewServer constructs a stopped server with the given configuration.
func NewServer(cfg config.Server, opts ...Option) *Server {
	s := &Server{
		logger:   slog.Default(),
		registry: NewRegistry(),
		cfg:      cfg,
		state:    stateStopped,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Loopback tooling connects from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if !cfg.Logging {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// SetTaskCommandHandler installs or replaces the task-command handler.
// Safe to call while the server is listening.
func (s *Server) SetTaskCommandHandler(h host.TaskCommandHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Start validates configuration, binds a port, and begins accepting
// connections. Starting an already-listening server is an error.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.state != stateStopped {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "start server")
	}
	s.state = stateStarting
	cfg := s.cfg
	s.mu.Unlock()

	fail := func(err error) error {
		s.mu.Lock()
		s.state = stateStopped
		s.mu.Unlock()
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fail(err)
	}

	listener, port, err := acquireListener(cfg, s.logger)
	if err != nil {
		return fail(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)

	s.lifecycleCtx, s.lifecycleCancel = context.WithCancel(context.Background())
	s.heartbeatStop = make(chan struct{})

	s.mu.Lock()
	s.listener = listener
	s.boundPort = port
	s.httpServer = &http.Server{Handler: mux}
	s.startedAt = time.Now()
	s.state = stateListening
	s.mu.Unlock()

	s.wg.Add(2)
	go s.serve(listener)
	go s.runHeartbeat(cfg.HeartbeatInterval())

	s.logger.Info("streaming server listening",
		"port", port,
		"preferredPort", cfg.Port,
		"heartbeatInterval", cfg.HeartbeatInterval().String())
	return nil
}

// acquireListener binds the preferred port, walking the fallback range
// upward on address conflicts. Port 0 binds an OS-assigned ephemeral
// port and never falls back.
func acquireListener(cfg config.Server, logger *slog.Logger) (net.Listener, int, error) {
	port := cfg.Port
	for {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			bound := listener.Addr().(*net.TCPAddr).Port
			return listener, bound, nil
		}
		if !stderrors.Is(err, syscall.EADDRINUSE) {
			return nil, 0, errors.WrapFatal(err, "Server", "Start",
				fmt.Sprintf("bind port %d", port))
		}

		logger.Warn("port unavailable, trying next", "port", port)
		next := port + 1
		if port < cfg.PortRange.Min {
			next = cfg.PortRange.Min
		}
		if port == 0 || cfg.PortRange == (config.Range{}) || next > cfg.PortRange.Max {
			return nil, 0, errors.WrapFatal(errors.ErrNoAvailablePort, "Server", "Start",
				fmt.Sprintf("exhausted ports %d and range [%d,%d]",
					cfg.Port, cfg.PortRange.Min, cfg.PortRange.Max))
		}
		port = next
	}
}

func (s *Server) serve(listener net.Listener) {
	defer s.wg.Done()

	s.mu.RLock()
	httpServer := s.httpServer
	s.mu.RUnlock()

	if err := httpServer.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		s.errorCount.Add(1)
		s.logger.Error("http serve loop exited", "error", err)
	}
}

// handleUpgrade accepts one WebSocket client and starts its read loop.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	accepting := s.state == stateListening
	readTimeout := s.cfg.ConnectionTimeout()
	s.mu.RUnlock()

	if !accepting {
		http.Error(w, errors.ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.errorCount.Add(1)
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	conn := newConn(ws)
	if !s.register(conn) {
		// Stop won the race between the state check and registration;
		// the registry was already cleared, so close the conn here.
		conn.close()
		return
	}
	s.metrics.connectionOpened(s.registry.Len())
	s.logger.Info("client connected", "connectionId", conn.ID, "remote", r.RemoteAddr)

	go s.readLoop(conn, readTimeout)
}

// register admits a connection only while the server is listening. The
// state check, registry insert, and waitgroup count happen under one
// lock so Stop cannot clear the registry (or begin its wait) between
// them.
func (s *Server) register(conn *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateListening {
		return false
	}
	s.registry.Add(conn)
	s.wg.Add(1)
	return true
}

// readLoop consumes inbound frames until the connection dies or the
// server stops. Any inbound frame refreshes the read deadline.
func (s *Server) readLoop(conn *Conn, readTimeout time.Duration) {
	defer s.wg.Done()
	defer s.dropConn(conn, "read_closed")

	for {
		_, data, err := conn.transport.ReadMessage()
		if err != nil {
			if !conn.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("connection read ended", "connectionId", conn.ID, "error", err)
			}
			return
		}
		_ = conn.transport.SetReadDeadline(time.Now().Add(readTimeout))
		s.handleInbound(conn, data)
	}
}

// handleInbound parses and dispatches one frame from a client. Invalid
// JSON and unrecognized frame types are dropped without killing the
// connection.
func (s *Server) handleInbound(conn *Conn, data []byte) {
	frame, err := message.ParseInboundFrame(data)
	if err != nil {
		s.metrics.frameDropped("malformed")
		s.logger.Warn("dropping malformed inbound frame",
			"connectionId", conn.ID, "error", err)
		return
	}

	switch frame.Type {
	case message.FrameTypeTaskCommand:
		s.handleTaskCommand(conn, frame)
	default:
		s.metrics.frameDropped("unrecognized_type")
		s.logger.Warn("ignoring inbound frame",
			"connectionId", conn.ID, "frameType", frame.Type,
			"error", errors.ErrUnknownFrame)
	}
}

// handleTaskCommand forwards a command to the host handler and replies
// to the originating connection only.
func (s *Server) handleTaskCommand(conn *Conn, frame message.InboundFrame) {
	s.mu.RLock()
	handler := s.handler
	ctx := s.lifecycleCtx
	s.mu.RUnlock()

	if handler == nil {
		s.metrics.command("no_handler")
		s.errorCount.Add(1)
		s.logger.Error("task command received without a handler",
			"connectionId", conn.ID, "commandName", frame.CommandName,
			"error", errors.ErrNoHandler)
		s.replyTo(conn, message.NewErrorFrame(errors.ErrNoHandler.Error()))
		return
	}

	err := s.invokeHandler(ctx, handler, frame)
	if err != nil {
		s.metrics.command("error")
		s.errorCount.Add(1)
		s.logger.Warn("task command failed",
			"connectionId", conn.ID, "commandName", frame.CommandName, "error", err)
		s.replyTo(conn, message.NewErrorFrame(err.Error()))
		return
	}

	s.metrics.command("ok")
	s.logger.Debug("task command handled",
		"connectionId", conn.ID, "commandName", frame.CommandName)
	s.replyTo(conn, message.NewAckFrame(frame.CommandName))
}

// invokeHandler shields the server from panics in host code; a panic
// becomes an error reply on the originating connection.
func (s *Server) invokeHandler(ctx context.Context, handler host.TaskCommandHandler, frame message.InboundFrame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapInvalid(
				fmt.Errorf("command handler panicked: %v", r),
				"Server", "handleTaskCommand", "invoke handler")
		}
	}()
	return handler(ctx, frame.CommandName, frame.Data)
}

// replyTo writes a control frame to one connection; a failed write
// drops the connection like any other dead peer.
func (s *Server) replyTo(conn *Conn, frame any) {
	if err := conn.writeJSON(frame, writeTimeout); err != nil {
		s.logger.Warn("reply write failed, dropping connection",
			"connectionId", conn.ID, "error", err)
		s.dropConn(conn, "write_failed")
	}
}

// BroadcastEvent serializes the event once and writes it to every
// registered connection. Peers whose write fails are removed inline;
// the rest still receive the event. Broadcasting with zero connections
// is a no-op.
func (s *Server) BroadcastEvent(ev message.StreamEvent) {
	data, err := ev.Marshal()
	if err != nil {
		s.errorCount.Add(1)
		s.logger.Error("dropping unserializable event",
			"eventId", ev.EventID, "eventType", ev.Type, "error", err)
		return
	}

	conns := s.registry.Snapshot()
	if len(conns) == 0 {
		return
	}

	start := time.Now()
	delivered := 0
	for _, conn := range conns {
		if err := conn.writeFrame(data, writeTimeout); err != nil {
			s.logger.Warn("broadcast write failed, removing connection",
				"connectionId", conn.ID, "eventType", ev.Type, "error", err)
			s.dropConn(conn, "write_failed")
			continue
		}
		delivered++
		s.metrics.eventSent(ev.Type)
	}
	s.metrics.broadcastObserved(time.Since(start))

	s.logger.Debug("event broadcast",
		"eventId", ev.EventID, "eventType", ev.Type,
		"delivered", delivered, "attempted", len(conns))
}

// dropConn removes a connection from the registry and closes it.
// Idempotent: racing drops (read loop vs broadcast) count once.
func (s *Server) dropConn(conn *Conn, reason string) {
	if !s.registry.Remove(conn.ID) {
		return
	}
	s.metrics.connectionClosed(reason, s.registry.Len())
	s.logger.Info("client disconnected", "connectionId", conn.ID, "reason", reason)
}

// runHeartbeat broadcasts a heartbeat event on the configured cadence
// and pings each peer so idle clients keep their read deadline fresh.
func (s *Server) runHeartbeat(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.BroadcastEvent(message.NewHeartbeatEvent(time.Now()))
			s.metrics.heartbeat()
			for _, conn := range s.registry.Snapshot() {
				if err := conn.ping(writeTimeout); err != nil {
					s.dropConn(conn, "ping_failed")
				}
			}
		case <-s.heartbeatStop:
			return
		}
	}
}

// Stop tears the server down in order: stop heartbeats, close client
// connections, then close the listener and wait for goroutines up to
// the given timeout. Stopping a stopped server is a no-op.
func (s *Server) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.state != stateListening {
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopping
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("streaming server stopping", "connections", s.registry.Len())

	close(s.heartbeatStop)
	s.lifecycleCancel()
	s.registry.Clear()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown incomplete, forcing close", "error", err)
		_ = httpServer.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("timed out waiting for connection goroutines")
	}

	s.mu.Lock()
	s.state = stateStopped
	s.listener = nil
	s.httpServer = nil
	s.boundPort = 0
	s.mu.Unlock()

	s.logger.Info("streaming server stopped")
	return nil
}

// UpdateConfig merges a partial override into the running configuration.
// Transport-affecting fields (port, port range) take effect on the next
// Start; timing and logging fields apply to new connections and ticks.
func (s *Server) UpdateConfig(p config.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Apply(p)
	if err := next.Validate(); err != nil {
		return err
	}
	if s.state == stateListening && p.Port != nil && *p.Port != s.boundPort {
		s.logger.Info("port change staged, applies on next start",
			"currentPort", s.boundPort, "requestedPort", *p.Port)
	}
	s.cfg = next
	return nil
}

// Config returns a copy of the current configuration.
func (s *Server) Config() config.Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// BoundPort returns the actually-bound listen port, or 0 when stopped.
// It may differ from the configured port after range fallback.
func (s *Server) BoundPort() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boundPort
}

// ConnectionCount returns the number of live client connections.
func (s *Server) ConnectionCount() int {
	return s.registry.Len()
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateListening
}

// HealthStatus returns a point-in-time status snapshot.
func (s *Server) HealthStatus() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := Health{
		Running:     s.state == stateListening,
		BoundPort:   s.boundPort,
		Connections: s.registry.Len(),
		Errors:      s.errorCount.Load(),
	}
	if h.Running {
		h.Uptime = time.Since(s.startedAt)
	}
	return h
}
