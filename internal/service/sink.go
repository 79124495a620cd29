package service

import (
	"context"
	"time"

	"ai-lecture-be/internal/model"
	"ai-lecture-be/pkg/bridge"
)

// EventPublisher is the shared shape of the Redis bridge publisher and the
// in-process watermill bus.
type EventPublisher interface {
	Publish(ctx context.Context, sessionID, event string, data interface{}) error
}

var (
	_ EventPublisher = &bridge.Publisher{}
	_ EventPublisher = &bridge.LocalBus{}
)

// BridgeSink hands pipeline output to whichever bridge transport the
// process was wired with: the watermill local bus when the pipeline and the
// connection owner share a process, the Redis bridge when they do not.
type BridgeSink struct {
	publisher EventPublisher
}

var _ DeliverySink = &BridgeSink{}

func NewBridgeSink(publisher EventPublisher) *BridgeSink {
	return &BridgeSink{publisher: publisher}
}

func (s *BridgeSink) AnnouncePlan(ctx context.Context, sessionID string, plan *model.Plan) error {
	return s.publisher.Publish(ctx, sessionID, EventPlan, plan)
}

func (s *BridgeSink) DeliverChunk(ctx context.Context, sessionID string, step model.Step, chunk *model.Chunk, plan model.PlanSummary) error {
	return s.publisher.Publish(ctx, sessionID, EventRendered, model.RenderedPayload{
		Chunk:     chunk,
		Step:      step,
		Plan:      plan,
		Timestamp: time.Now(),
	})
}
