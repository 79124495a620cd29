package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Handler processes one job payload. A returned error NaKs the message so
// JetStream redelivers it; handlers must therefore be idempotent.
type Handler func(ctx context.Context, payload []byte) error

// Subscriber pulls jobs from the durable work queue with bounded
// per-stage concurrency.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
}

func NewSubscriber(url, stream string) (*Subscriber, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Subscriber{nc: nc, js: js, stream: stream}, nil
}

// Subscribe registers a durable consumer for one subject. At most `workers`
// handlers run concurrently; extra messages wait in the stream.
func (s *Subscriber) Subscribe(subject, durableName string, workers int, handler Handler) error {
	ctx := context.Background()

	if workers <= 0 {
		workers = 1
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.stream, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sem := make(chan struct{}, workers)

	_, err = consumer.Consume(func(msg jetstream.Msg) {
		// Delayed jobs come back around until they are due.
		if remaining, due := delayRemaining(msg.Headers()); !due {
			if err := msg.NakWithDelay(remaining); err != nil {
				log.Printf("Nak failed for %s: %v", msg.Subject(), err)
			}
			return
		}

		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()

			if err := handler(context.Background(), msg.Data()); err != nil {
				log.Printf("Handler failed for job %s: %v", msg.Subject(), err)
				msg.Nak() // Retry per stream policy
				return
			}
			msg.Ack()
		}()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	log.Printf("Subscribed to %s with durable %s (%d workers)", subject, durableName, workers)
	return nil
}

func delayRemaining(headers nats.Header) (time.Duration, bool) {
	raw := headers.Get(notBeforeHeader)
	if raw == "" {
		return 0, true
	}
	notBefore, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// Unparseable header: run now rather than loop forever.
		return 0, true
	}
	remaining := time.Until(notBefore)
	if remaining <= 0 {
		return 0, true
	}
	return remaining, false
}

// Close closes the connection.
func (s *Subscriber) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
