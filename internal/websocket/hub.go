package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ai-lecture-be/internal/pkg/logger"

	"github.com/google/uuid"
)

// ErrNoAck is returned when a connection does not acknowledge an emission
// within the timeout.
var ErrNoAck = errors.New("websocket: no acknowledgement")

// ErrConnClosed is returned when emitting to a connection that has already
// been unregistered.
var ErrConnClosed = errors.New("websocket: connection closed")

// envelope is the outbound wire format. AckID, when set, asks the client
// to reply with {"type":"ack","ack_id":...}.
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	AckID string      `json:"ack_id,omitempty"`
}

// Hub owns every live connection of this process and groups them into
// broadcast groups (rooms) keyed by session ID.
type Hub struct {
	// rooms: session ID -> member connections (multi-tab)
	rooms map[string][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Pending delivery acknowledgements keyed by ack ID.
	acks map[string]chan struct{}

	// Lock for safe map access
	mu sync.RWMutex

	logger logger.ILogger

	// OnSessionJoin fires after a connection joins a room. Wired by the
	// container to replay parked deliveries and flush the session queue.
	OnSessionJoin func(sessionID string)
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		rooms:      make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		acks:       make(map[string]chan struct{}),
		logger:     log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.rooms[client.Room] = append(h.rooms[client.Room], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client joined group", map[string]interface{}{
				"session": client.Room, "conn": client.ID,
			})

			if h.OnSessionJoin != nil {
				go h.OnSessionJoin(client.Room)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if members, ok := h.rooms[client.Room]; ok {
				for i, c := range members {
					if c == client {
						h.rooms[client.Room] = append(members[:i], members[i+1:]...)
						// The closed flag and the close itself share the hub
						// lock with send, so an in-flight emit can never hit
						// a closed channel.
						client.closed = true
						close(client.Send)
						break
					}
				}
				if len(h.rooms[client.Room]) == 0 {
					delete(h.rooms, client.Room)
					h.logger.Info("Hub", "Group is now empty", map[string]interface{}{"session": client.Room})
				}
			}
			h.mu.Unlock()
		}
	}
}

// Connections resolves every live connection associated with a session,
// by room membership or by connection-local tag. Both are checked because
// a connection can be in the room before its tag is set.
func (h *Hub) Connections(sessionID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[uuid.UUID]bool)
	var out []*Client

	for _, c := range h.rooms[sessionID] {
		if !seen[c.ID] {
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	for room, members := range h.rooms {
		if room == sessionID {
			continue
		}
		for _, c := range members {
			if c.Session == sessionID && !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// EmitWithAck sends one event to one connection and waits for the client
// acknowledgement up to timeout.
func (h *Hub) EmitWithAck(client *Client, event string, data interface{}, timeout time.Duration) error {
	ackID := uuid.NewString()
	ackCh := make(chan struct{}, 1)

	h.mu.Lock()
	h.acks[ackID] = ackCh
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.acks, ackID)
		h.mu.Unlock()
	}()

	if err := h.send(client, envelope{Event: event, Data: data, AckID: ackID}); err != nil {
		return err
	}

	select {
	case <-ackCh:
		return nil
	case <-time.After(timeout):
		return ErrNoAck
	}
}

// EmitToGroup broadcasts an event to every member of a group without
// requiring acknowledgement. Returns the member count at emission time.
func (h *Hub) EmitToGroup(sessionID, event string, data []byte) int {
	members := h.Connections(sessionID)
	payload := envelope{Event: event, Data: json.RawMessage(data)}
	for _, c := range members {
		if err := h.send(c, payload); err != nil {
			h.logger.Warn("Hub", "Group emit dropped for connection", map[string]interface{}{
				"session": sessionID, "conn": c.ID, "error": err.Error(),
			})
		}
	}
	return len(members)
}

// EmitValueToGroup is EmitToGroup for already-typed payloads.
func (h *Hub) EmitValueToGroup(sessionID, event string, data interface{}) int {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Hub", "Marshal group payload failed", map[string]interface{}{"error": err.Error()})
		return 0
	}
	return h.EmitToGroup(sessionID, event, raw)
}

func (h *Hub) send(client *Client, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	if client.closed {
		h.mu.RUnlock()
		return ErrConnClosed
	}
	select {
	case client.Send <- data:
		h.mu.RUnlock()
		return nil
	default:
		h.mu.RUnlock()
		// Send buffer full: the client is too slow, drop it. Handed off
		// asynchronously so the Run loop never waits on a send caller.
		go func() { h.unregister <- client }()
		return errors.New("websocket: send buffer full")
	}
}

func (h *Hub) resolveAck(ackID string) {
	h.mu.RLock()
	ch, ok := h.acks[ackID]
	h.mu.RUnlock()
	if ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) tagClient(client *Client, sessionID string) {
	h.mu.Lock()
	client.Session = sessionID
	h.mu.Unlock()
}
