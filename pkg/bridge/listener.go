package bridge

import (
	"context"
	"encoding/json"

	"ai-lecture-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Listener runs in the process that owns client connections. It subscribes
// to the bridge topic and relays each message into the named broadcast
// group. Member count is logged for observability only; an empty group is
// not an error here.
type Listener struct {
	rdb     *redis.Client
	emitter GroupEmitter
	logger  logger.ILogger
}

func NewListener(rdb *redis.Client, emitter GroupEmitter, log logger.ILogger) *Listener {
	return &Listener{rdb: rdb, emitter: emitter, logger: log}
}

// Run blocks consuming bridge messages until ctx is cancelled. Start it in
// its own goroutine.
func (l *Listener) Run(ctx context.Context) {
	pubsub := l.rdb.Subscribe(ctx, Topic)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			l.handle(msg.Payload)
		}
	}
}

func (l *Listener) handle(payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		l.logger.Warn("Bridge", "Dropping unparseable bridge message", map[string]interface{}{"error": err.Error()})
		return
	}
	if msg.SessionID == "" || msg.Event == "" {
		l.logger.Warn("Bridge", "Dropping bridge message without session/event", nil)
		return
	}

	members := l.emitter.EmitToGroup(msg.SessionID, msg.Event, msg.Data)
	l.logger.Info("Bridge", "Relayed event to group", map[string]interface{}{
		"session": msg.SessionID,
		"event":   msg.Event,
		"members": members,
	})
}
