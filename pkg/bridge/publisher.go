package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher is the worker-side half of the bridge: a process without direct
// access to client connections publishes events here for the connection
// owner to emit.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Publish(ctx context.Context, sessionID, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("bridge marshal event data: %w", err)
	}

	msg := Message{
		SessionID: sessionID,
		Event:     event,
		Data:      raw,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bridge marshal message: %w", err)
	}

	if err := p.rdb.Publish(ctx, Topic, payload).Err(); err != nil {
		return fmt.Errorf("bridge publish: %w", err)
	}
	return nil
}
