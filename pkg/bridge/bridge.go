package bridge

import (
	"encoding/json"
	"time"
)

// Topic is the single pub/sub channel every process shares. The bridge
// itself carries no delivery guarantee: a message published while no
// listener is subscribed is lost. Reliability is layered on top by the
// delivery manager, or by the orchestrator delivering directly when it
// owns the connections.
const Topic = "lecture_events"

// Message asks the process that owns the client connections to emit an
// event into the broadcast group named by SessionID.
type Message struct {
	SessionID string          `json:"session_id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// GroupEmitter is the connection-owning side of the bridge, implemented by
// the websocket hub. It reports how many group members received the emit.
type GroupEmitter interface {
	EmitToGroup(sessionID, event string, data []byte) int
}
