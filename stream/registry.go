package stream

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sudocode-ai/Roo-Code-server/errors"
)

// transport is the narrow surface of *websocket.Conn the server uses.
// Tests inject failing implementations to exercise broadcast
// self-healing without a network.
type transport interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one registered client connection. It lives in process memory
// only: created on transport-level connect, destroyed on close, read
// error, or a failed broadcast write.
type Conn struct {
	// ID is unique per connection, assigned at accept time.
	ID string
	// ConnectedAt is the accept timestamp.
	ConnectedAt time.Time

	transport transport
	// writeMu serializes writes; the websocket library does not allow
	// concurrent writers on one connection.
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func newConn(tr transport) *Conn {
	return &Conn{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		transport:   tr,
	}
}

// writeFrame writes one serialized frame with a bounded deadline.
func (c *Conn) writeFrame(data []byte, deadline time.Duration) error {
	if c.closed.Load() {
		return errors.ErrConnectionLost
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.transport.SetWriteDeadline(time.Now().Add(deadline))
	if err := c.transport.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(err, "Conn", "writeFrame", "write frame")
	}
	return nil
}

// writeJSON serializes v and writes it as one frame.
func (c *Conn) writeJSON(v any, deadline time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WrapInvalid(err, "Conn", "writeJSON", "marshal frame")
	}
	return c.writeFrame(data, deadline)
}

// ping sends a protocol-level ping so idle clients refresh their read
// deadline via the pong reply.
func (c *Conn) ping(deadline time.Duration) error {
	if c.closed.Load() {
		return errors.ErrConnectionLost
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.transport.SetWriteDeadline(time.Now().Add(deadline))
	return c.transport.WriteMessage(websocket.PingMessage, nil)
}

// close shuts the underlying transport exactly once.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.transport.Close()
	})
}

// Registry tracks live client connections. It is owned and mutated only
// by the Streaming Server; dead entries are removed inline when a write
// fails.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Add registers a connection.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

// Remove deregisters and closes a connection. It reports whether the
// connection was registered, so callers can avoid double-counting
// removal of an already-dropped peer.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	c, exists := r.conns[id]
	if exists {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if exists {
		c.close()
	}
	return exists
}

// Snapshot returns the current connection set. Connections registered
// after the snapshot is taken are not retroactively included in an
// in-progress broadcast.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Clear closes every registered connection and empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
