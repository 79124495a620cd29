package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// notBeforeHeader carries the earliest execution time of a delayed job.
// A consumer that receives the job early NaKs it back with the remaining
// delay, so pacing survives worker restarts.
const notBeforeHeader = "Job-Not-Before"

// Publisher enqueues jobs onto the durable JetStream work queue.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
}

// NewPublisher connects to NATS and ensures the work-queue stream exists.
func NewPublisher(url, stream string, subjects []string) (*Publisher, error) {
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  subjects,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		log.Printf("Warn: Failed to ensure stream %q: %v", stream, err)
		// Don't fail hard here, maybe it already exists or NATS isn't ready
	}

	return &Publisher{nc: nc, js: js, stream: stream}, nil
}

// Publish enqueues a job for immediate pickup.
func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte) error {
	return p.publish(ctx, subject, payload, time.Time{})
}

// PublishDelayed enqueues a job that must not run before now+delay.
func (p *Publisher) PublishDelayed(ctx context.Context, subject string, payload []byte, delay time.Duration) error {
	return p.publish(ctx, subject, payload, time.Now().Add(delay))
}

func (p *Publisher) publish(ctx context.Context, subject string, payload []byte, notBefore time.Time) error {
	msg := &nats.Msg{
		Subject: subject,
		Data:    payload,
		Header:  nats.Header{},
	}
	if !notBefore.IsZero() {
		msg.Header.Set(notBeforeHeader, notBefore.Format(time.RFC3339Nano))
	}

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish job to subject %s: %w", subject, err)
	}
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
