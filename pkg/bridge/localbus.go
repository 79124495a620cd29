package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// LocalBus carries bridge messages between goroutines of a single process,
// with the same contract as the Redis bridge. Used when the generation
// pipeline and the connection owner are co-located (cmd/rest embedded mode).
type LocalBus struct {
	pubSub *gochannel.GoChannel
	topic  string
}

func NewLocalBus(topic string) *LocalBus {
	return &LocalBus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false)),
		topic:  topic,
	}
}

func (b *LocalBus) Publish(ctx context.Context, sessionID, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("local bus marshal event data: %w", err)
	}

	payload, err := json.Marshal(Message{
		SessionID: sessionID,
		Event:     event,
		Data:      raw,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("local bus marshal message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	return b.pubSub.Publish(b.topic, msg)
}

// Consume routes bus messages into the handler until ctx is cancelled.
func (b *LocalBus) Consume(ctx context.Context, handler func(ctx context.Context, msg Message)) error {
	messages, err := b.pubSub.Subscribe(ctx, b.topic)
	if err != nil {
		return err
	}

	go func() {
		for wm := range messages {
			var msg Message
			if err := json.Unmarshal(wm.Payload, &msg); err != nil {
				wm.Ack() // malformed, do not redeliver
				continue
			}
			handler(ctx, msg)
			wm.Ack()
		}
	}()

	return nil
}

func (b *LocalBus) Close() error {
	return b.pubSub.Close()
}
