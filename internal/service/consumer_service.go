package service

import (
	"context"
	"encoding/json"

	"ai-lecture-be/internal/model"
	"ai-lecture-be/internal/pkg/logger"
	"ai-lecture-be/internal/websocket"
	"ai-lecture-be/pkg/bridge"
)

// IConsumerService routes content events arriving over the in-process bus
// into the delivery subsystem.
type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	bus    *bridge.LocalBus
	router *RenderRouter
}

func NewConsumerService(bus *bridge.LocalBus, router *RenderRouter) IConsumerService {
	return &consumerService{bus: bus, router: router}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	return cs.bus.Consume(ctx, func(ctx context.Context, msg bridge.Message) {
		cs.router.EmitToGroup(msg.SessionID, msg.Event, msg.Data)
	})
}

// RenderRouter is the receiving side of both bridge transports. Rendered
// chunks are routed through the delivery manager so they inherit its
// retry/park guarantees; every other event is a plain group emit, which is
// all the guarantee-free bridge promises.
type RenderRouter struct {
	hub      *websocket.Hub
	delivery *DeliveryService
	logger   logger.ILogger
}

var _ bridge.GroupEmitter = &RenderRouter{}

func NewRenderRouter(hub *websocket.Hub, delivery *DeliveryService, log logger.ILogger) *RenderRouter {
	return &RenderRouter{hub: hub, delivery: delivery, logger: log}
}

func (r *RenderRouter) EmitToGroup(sessionID, event string, data []byte) int {
	if event != EventRendered {
		return r.hub.EmitToGroup(sessionID, event, data)
	}

	var payload model.RenderedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Error("Router", "Unparseable rendered payload, dropping", map[string]interface{}{
			"session": sessionID, "error": err.Error(),
		})
		return 0
	}

	r.delivery.QueueForDelivery(sessionID, payload.Step, payload.Chunk, payload.Plan)
	return len(r.hub.Connections(sessionID))
}
