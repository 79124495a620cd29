package websocket

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (testLogger) Debug(module, message string, details map[string]interface{}) {}
func (testLogger) Info(module, message string, details map[string]interface{})  {}
func (testLogger) Warn(module, message string, details map[string]interface{})  {}
func (testLogger) Error(module, message string, details map[string]interface{}) {}
func (testLogger) Sync() error                                                  { return nil }

func newTestClient(hub *Hub, room string) *Client {
	return &Client{
		Hub:     hub,
		ID:      uuid.New(),
		Room:    room,
		Session: room,
		Send:    make(chan []byte, 16),
	}
}

func register(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	require.Eventually(t, func() bool {
		return len(hub.Connections(c.Room)) > 0
	}, time.Second, time.Millisecond)
}

func TestConnectionsResolvesRoomAndTag(t *testing.T) {
	hub := NewHub(testLogger{})
	go hub.Run()

	member := newTestClient(hub, "sess-1")
	register(t, hub, member)

	// A connection in another room, tagged onto sess-1.
	follower := newTestClient(hub, "sess-2")
	register(t, hub, follower)
	hub.tagClient(follower, "sess-1")

	conns := hub.Connections("sess-1")
	require.Len(t, conns, 2)

	// Tagging the room member to its own session must not duplicate it.
	hub.tagClient(member, "sess-1")
	assert.Len(t, hub.Connections("sess-1"), 2)
}

func TestOnSessionJoinFires(t *testing.T) {
	hub := NewHub(testLogger{})
	joined := make(chan string, 1)
	hub.OnSessionJoin = func(sessionID string) { joined <- sessionID }
	go hub.Run()

	register(t, hub, newTestClient(hub, "sess-1"))

	select {
	case id := <-joined:
		assert.Equal(t, "sess-1", id)
	case <-time.After(time.Second):
		t.Fatal("OnSessionJoin did not fire")
	}
}

func TestEmitWithAckResolved(t *testing.T) {
	hub := NewHub(testLogger{})
	go hub.Run()

	client := newTestClient(hub, "sess-1")
	register(t, hub, client)

	// Simulate a client that acknowledges whatever it receives.
	go func() {
		raw := <-client.Send
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.AckID != "" {
			hub.resolveAck(env.AckID)
		}
	}()

	err := hub.EmitWithAck(client, "rendered", map[string]int{"step": 0}, time.Second)
	assert.NoError(t, err)
}

func TestEmitWithAckTimesOut(t *testing.T) {
	hub := NewHub(testLogger{})
	go hub.Run()

	client := newTestClient(hub, "sess-1")
	register(t, hub, client)

	err := hub.EmitWithAck(client, "rendered", nil, 20*time.Millisecond)
	assert.True(t, errors.Is(err, ErrNoAck))
}

func TestEmitToDisconnectedClientFails(t *testing.T) {
	hub := NewHub(testLogger{})
	go hub.Run()

	client := newTestClient(hub, "sess-1")
	register(t, hub, client)

	// A delivery attempt can resolve the connection just before it
	// disconnects; the late emit must error, never panic.
	hub.unregister <- client
	require.Eventually(t, func() bool {
		return len(hub.Connections("sess-1")) == 0
	}, time.Second, time.Millisecond)

	err := hub.EmitWithAck(client, "rendered", nil, 20*time.Millisecond)
	assert.True(t, errors.Is(err, ErrConnClosed))

	assert.Equal(t, 0, hub.EmitToGroup("sess-1", "plan", []byte(`{}`)))
}

func TestEmitToGroupReturnsMemberCount(t *testing.T) {
	hub := NewHub(testLogger{})
	go hub.Run()

	a := newTestClient(hub, "sess-1")
	b := newTestClient(hub, "sess-1")
	hub.register <- a
	hub.register <- b
	require.Eventually(t, func() bool {
		return len(hub.Connections("sess-1")) == 2
	}, time.Second, time.Millisecond)

	n := hub.EmitToGroup("sess-1", "plan", []byte(`{"title":"x"}`))
	assert.Equal(t, 2, n)

	var env envelope
	require.NoError(t, json.Unmarshal(<-a.Send, &env))
	assert.Equal(t, "plan", env.Event)
	assert.Empty(t, env.AckID)
}
