package stream

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudocode-ai/Roo-Code-server/config"
	"github.com/sudocode-ai/Roo-Code-server/errors"
	"github.com/sudocode-ai/Roo-Code-server/message"
)

// newTestServer starts a server on an ephemeral port and registers its
// teardown with the test.
func newTestServer(t *testing.T, mutate func(*config.Server), opts ...Option) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Enabled = true
	cfg.Port = 0
	cfg.PortRange = config.Range{}
	if mutate != nil {
		mutate(&cfg)
	}

	s := NewServer(cfg, opts...)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(2 * time.Second) })
	return s
}

func dialServer(t *testing.T, port int) *websocket.Conn {
	t.Helper()

	c, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/", port), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	return decoded
}

func waitForConnections(t *testing.T, s *Server, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for s.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, have %d", n, s.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartAssignsEphemeralPort(t *testing.T) {
	s := newTestServer(t, nil)

	assert.True(t, s.Running())
	assert.Greater(t, s.BoundPort(), 0)
}

func TestStartTwiceRejected(t *testing.T) {
	s := newTestServer(t, nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrAlreadyStarted))
}

func TestStopIsIdempotentAndRestartable(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 0
	cfg.PortRange = config.Range{}
	s := NewServer(cfg)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(2*time.Second))
	require.NoError(t, s.Stop(2*time.Second))
	assert.False(t, s.Running())
	assert.Equal(t, 0, s.BoundPort())

	// A stopped server can be started again.
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())
	require.NoError(t, s.Stop(2*time.Second))
}

func TestStopClosesClientConnections(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 0
	cfg.PortRange = config.Range{}
	s := NewServer(cfg)
	require.NoError(t, s.Start(context.Background()))

	client := dialServer(t, s.BoundPort())
	waitForConnections(t, s, 1)

	require.NoError(t, s.Stop(2*time.Second))
	assert.Equal(t, 0, s.ConnectionCount())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}

func TestPortFallbackOnConflict(t *testing.T) {
	// Occupy an ephemeral port, then ask the server to prefer it with a
	// fallback range right above.
	blocker, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer blocker.Close()
	taken := blocker.Addr().(*net.TCPAddr).Port

	cfg := config.Default()
	cfg.Port = taken
	cfg.PortRange = config.Range{Min: taken, Max: taken + 20}
	s := NewServer(cfg)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(2 * time.Second)

	assert.Greater(t, s.BoundPort(), taken)
	assert.LessOrEqual(t, s.BoundPort(), taken+20)
}

func TestPortRangeExhausted(t *testing.T) {
	blocker, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer blocker.Close()
	taken := blocker.Addr().(*net.TCPAddr).Port

	cfg := config.Default()
	cfg.Port = taken
	cfg.PortRange = config.Range{Min: taken, Max: taken}
	s := NewServer(cfg)

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNoAvailablePort))
	assert.False(t, s.Running())
}

func TestBroadcastReachesAllClients(t *testing.T) {
	s := newTestServer(t, nil)

	c1 := dialServer(t, s.BoundPort())
	c2 := dialServer(t, s.BoundPort())
	waitForConnections(t, s, 2)

	env := message.NewEnvelope(message.RoleModel, message.TextPart("hello"))
	s.BroadcastEvent(message.NewMessageEvent("task-1", env))

	for _, client := range []*websocket.Conn{c1, c2} {
		got := readJSON(t, client)
		assert.Equal(t, "message", got["type"])
		assert.Equal(t, "task-1", got["task_id"])
		assert.NotEmpty(t, got["event_id"])
	}
}

func TestBroadcastRemovesDeadPeersAndDeliversToRest(t *testing.T) {
	s := newTestServer(t, nil)

	healthy1 := &fakeTransport{}
	healthy2 := &fakeTransport{}
	dead := &fakeTransport{failWrites: true}
	for _, tr := range []*fakeTransport{healthy1, dead, healthy2} {
		s.registry.Add(newConn(tr))
	}
	require.Equal(t, 3, s.ConnectionCount())

	env := message.NewEnvelope(message.RoleModel, message.TextPart("still here"))
	s.BroadcastEvent(message.NewMessageEvent("task-1", env))

	assert.Equal(t, 2, s.ConnectionCount())
	assert.True(t, dead.isClosed())
	assert.Equal(t, 1, healthy1.frameCount())
	assert.Equal(t, 1, healthy2.frameCount())
}

func TestBroadcastWithNoConnectionsIsNoop(t *testing.T) {
	s := newTestServer(t, nil)

	env := message.NewEnvelope(message.RoleModel, message.TextPart("into the void"))
	s.BroadcastEvent(message.NewMessageEvent("task-1", env))
	assert.Equal(t, 0, s.ConnectionCount())
}

func TestTaskCommandAckOnlyToOriginator(t *testing.T) {
	var gotCommand string
	var gotData json.RawMessage
	handler := func(_ context.Context, commandName string, data json.RawMessage) error {
		gotCommand = commandName
		gotData = data
		return nil
	}
	s := newTestServer(t, nil, WithCommandHandler(handler))

	sender := dialServer(t, s.BoundPort())
	bystander := dialServer(t, s.BoundPort())
	waitForConnections(t, s, 2)

	frame := `{"type":"taskCommand","commandName":"StartNewTask","data":{"text":"fix the bug"}}`
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(frame)))

	ack := readJSON(t, sender)
	assert.Equal(t, "taskCommandAck", ack["type"])
	assert.Equal(t, "StartNewTask", ack["commandName"])
	assert.Equal(t, "StartNewTask", gotCommand)
	assert.JSONEq(t, `{"text":"fix the bug"}`, string(gotData))

	// The ack must not be broadcast.
	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := bystander.ReadMessage()
	assert.Error(t, err)
}

func TestTaskCommandHandlerErrorRepliesErrorFrame(t *testing.T) {
	handler := func(context.Context, string, json.RawMessage) error {
		return stderrors.New("task not found")
	}
	s := newTestServer(t, nil, WithCommandHandler(handler))

	client := dialServer(t, s.BoundPort())
	waitForConnections(t, s, 1)

	frame := `{"type":"taskCommand","commandName":"CancelTask","data":{"taskId":"nope"}}`
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(frame)))

	reply := readJSON(t, client)
	assert.Equal(t, "error", reply["type"])
	assert.Contains(t, reply["message"], "task not found")
}

func TestTaskCommandWithoutHandlerRepliesErrorFrame(t *testing.T) {
	s := newTestServer(t, nil)

	client := dialServer(t, s.BoundPort())
	waitForConnections(t, s, 1)

	frame := `{"type":"taskCommand","commandName":"StartNewTask"}`
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(frame)))

	reply := readJSON(t, client)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, errors.ErrNoHandler.Error(), reply["message"])
}

func TestTaskCommandHandlerPanicRepliesErrorFrame(t *testing.T) {
	handler := func(context.Context, string, json.RawMessage) error {
		panic("host went sideways")
	}
	s := newTestServer(t, nil, WithCommandHandler(handler))

	client := dialServer(t, s.BoundPort())
	waitForConnections(t, s, 1)

	frame := `{"type":"taskCommand","commandName":"StartNewTask"}`
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(frame)))

	reply := readJSON(t, client)
	assert.Equal(t, "error", reply["type"])
	assert.Contains(t, reply["message"], "panicked")
	assert.True(t, s.Running())
}

func TestMalformedAndUnknownFramesKeepConnectionAlive(t *testing.T) {
	handler := func(context.Context, string, json.RawMessage) error { return nil }
	s := newTestServer(t, nil, WithCommandHandler(handler))

	client := dialServer(t, s.BoundPort())
	waitForConnections(t, s, 1)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("this is not json")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)))

	// The connection must survive both bad frames and still serve
	// commands.
	frame := `{"type":"taskCommand","commandName":"StartNewTask"}`
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(frame)))

	ack := readJSON(t, client)
	assert.Equal(t, "taskCommandAck", ack["type"])
	assert.Equal(t, 1, s.ConnectionCount())
}

func TestHeartbeatBroadcastOnCadence(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Server) {
		cfg.HeartbeatIntervalMs = 50
	})

	client := dialServer(t, s.BoundPort())
	waitForConnections(t, s, 1)

	got := readJSON(t, client)
	assert.Equal(t, "heartbeat", got["type"])
	assert.NotContains(t, got, "task_id")

	data, ok := got["data"].(map[string]any)
	require.True(t, ok)
	serverTime, ok := data["serverTime"].(float64)
	require.True(t, ok)
	assert.InDelta(t, float64(time.Now().UnixMilli()), serverTime, 5000)
}

// The heartbeat must recur on the configured interval for the lifetime
// of the server: observing for a window T with interval H yields
// floor(T/H) broadcasts, within one tick of drift.
func TestHeartbeatRecursUntilStop(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Server) {
		cfg.HeartbeatIntervalMs = 50
	})

	client := dialServer(t, s.BoundPort())
	waitForConnections(t, s, 1)

	// 220ms at 50ms per tick: floor(220/50) = 4, +-1 for scheduling.
	windowEnd := time.Now().Add(220 * time.Millisecond)
	heartbeats := 0
	for time.Now().Before(windowEnd) {
		require.NoError(t, client.SetReadDeadline(windowEnd))
		_, data, err := client.ReadMessage()
		if err != nil {
			break
		}
		var got map[string]any
		require.NoError(t, json.Unmarshal(data, &got))
		if got["type"] == "heartbeat" {
			heartbeats++
		}
	}

	assert.GreaterOrEqual(t, heartbeats, 3, "ticker stopped early")
	assert.LessOrEqual(t, heartbeats, 5)
}

func TestUpdateConfigMergesAndValidates(t *testing.T) {
	s := newTestServer(t, nil)

	interval := int64(15000)
	require.NoError(t, s.UpdateConfig(config.Patch{HeartbeatIntervalMs: &interval}))
	assert.Equal(t, interval, s.Config().HeartbeatIntervalMs)

	bad := int64(-1)
	err := s.UpdateConfig(config.Patch{ConnectionTimeoutMs: &bad})
	require.Error(t, err)
	// The failed patch must not partially apply.
	assert.Equal(t, config.Default().ConnectionTimeoutMs, s.Config().ConnectionTimeoutMs)
}

func TestHealthStatusSnapshot(t *testing.T) {
	s := newTestServer(t, nil)

	dialServer(t, s.BoundPort())
	waitForConnections(t, s, 1)

	h := s.HealthStatus()
	assert.True(t, h.Running)
	assert.Equal(t, s.BoundPort(), h.BoundPort)
	assert.Equal(t, 1, h.Connections)
}

// A connection that finishes its upgrade while Stop is clearing the
// registry must not be admitted afterward and leak.
func TestRegisterRejectedWhenNotListening(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 0
	cfg.PortRange = config.Range{}
	s := NewServer(cfg)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(2*time.Second))

	conn := newConn(&fakeTransport{})
	assert.False(t, s.register(conn))
	assert.Equal(t, 0, s.ConnectionCount())
}

func TestInvalidConfigRejectedAtStart(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 0
	cfg.PortRange = config.Range{}
	cfg.HeartbeatIntervalMs = 0
	s := NewServer(cfg)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.False(t, s.Running())
}
