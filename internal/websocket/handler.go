package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs handles a websocket connection joining a session's broadcast
// group. Blocks until the connection closes.
func ServeWs(hub *Hub, c *websocket.Conn, sessionID string) {
	client := &Client{
		Hub:     hub,
		Conn:    c,
		ID:      uuid.New(),
		Room:    sessionID,
		Session: sessionID,
		Send:    make(chan []byte, 256),
	}
	client.Hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.readPump() // Run readPump in current goroutine (handler)
}
