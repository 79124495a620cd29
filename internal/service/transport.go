package service

import (
	"time"

	"ai-lecture-be/internal/websocket"
)

// HubTransport adapts the websocket hub to the delivery subsystem's
// GroupTransport contract.
type HubTransport struct {
	hub *websocket.Hub
}

var _ GroupTransport = &HubTransport{}

func NewHubTransport(hub *websocket.Hub) *HubTransport {
	return &HubTransport{hub: hub}
}

func (t *HubTransport) Resolve(sessionID string) []AckEmitter {
	clients := t.hub.Connections(sessionID)
	targets := make([]AckEmitter, 0, len(clients))
	for _, c := range clients {
		targets = append(targets, &ackTarget{hub: t.hub, client: c})
	}
	return targets
}

func (t *HubTransport) Broadcast(sessionID, event string, data interface{}) int {
	return t.hub.EmitValueToGroup(sessionID, event, data)
}

type ackTarget struct {
	hub    *websocket.Hub
	client *websocket.Client
}

func (a *ackTarget) EmitWithAck(event string, data interface{}, timeout time.Duration) error {
	return a.hub.EmitWithAck(a.client, event, data, timeout)
}
