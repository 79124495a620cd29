package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-lecture-be/internal/config"
	"ai-lecture-be/internal/dto"
	"ai-lecture-be/internal/model"
	"ai-lecture-be/internal/pkg/logger"
	"ai-lecture-be/internal/repository/contract"
	"ai-lecture-be/pkg/cache"
	"ai-lecture-be/pkg/lecture"
)

// pacingDelays maps a step's complexity rating to the dwell time before
// the next step is emitted. Simpler steps get shorter dwell; the prefetch
// job for the next step runs inside this window, hiding generation latency.
var pacingDelays = map[int]time.Duration{
	1:  10 * time.Second,
	2:  12 * time.Second,
	3:  15 * time.Second,
	4:  18 * time.Second,
	5:  22 * time.Second,
	6:  26 * time.Second,
	7:  30 * time.Second,
	8:  35 * time.Second,
	9:  40 * time.Second,
	10: 45 * time.Second,
}

const defaultPacing = 15 * time.Second

func pacingDelay(complexity int) time.Duration {
	if d, ok := pacingDelays[complexity]; ok {
		return d
	}
	return defaultPacing
}

// JobQueue is the durable at-least-once queue the pipeline schedules
// itself on. Implemented by jobs.Publisher.
type JobQueue interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	PublishDelayed(ctx context.Context, subject string, payload []byte, delay time.Duration) error
}

// ContentCache is the pipeline's view of the content-addressed cache.
type ContentCache interface {
	GetPlan(ctx context.Context, query string) (*model.Plan, bool)
	PutPlan(ctx context.Context, query string, plan *model.Plan)
	GetChunk(ctx context.Context, query string, stepID int) (*model.Chunk, bool)
	PutChunk(ctx context.Context, query string, stepID int, chunk *model.Chunk)
	Has(ctx context.Context, key string) bool
}

// DeliverySink receives finished content. In-process it routes into the
// delivery manager; in a separate worker it crosses the event bridge.
type DeliverySink interface {
	AnnouncePlan(ctx context.Context, sessionID string, plan *model.Plan) error
	DeliverChunk(ctx context.Context, sessionID string, step model.Step, chunk *model.Chunk, plan model.PlanSummary) error
}

type IPipelineService interface {
	HandlePlanJob(ctx context.Context, payload []byte) error
	HandleGenerateJob(ctx context.Context, payload []byte) error
}

// pipelineService runs the two chained job stages: plan, then per-step
// generation. Jobs are redelivered at-least-once, so every handler is
// idempotent: cache keys are deterministic and writes are replaceable.
type pipelineService struct {
	cfg       config.PipelineConfig
	queue     JobQueue
	repo      contract.SessionRepository
	cache     ContentCache
	planner   lecture.Planner
	generator lecture.Generator
	compiler  lecture.Compiler
	postproc  lecture.PostProcessor
	sink      DeliverySink
	logger    logger.ILogger
}

func NewPipelineService(
	cfg config.PipelineConfig,
	queue JobQueue,
	repo contract.SessionRepository,
	contentCache ContentCache,
	planner lecture.Planner,
	generator lecture.Generator,
	compiler lecture.Compiler,
	postproc lecture.PostProcessor,
	sink DeliverySink,
	log logger.ILogger,
) IPipelineService {
	return &pipelineService{
		cfg:       cfg,
		queue:     queue,
		repo:      repo,
		cache:     contentCache,
		planner:   planner,
		generator: generator,
		compiler:  compiler,
		postproc:  postproc,
		sink:      sink,
		logger:    log,
	}
}

// HandlePlanJob runs the plan stage. Any failure fails the job; the queue's
// own retry/backoff governs redelivery.
func (s *pipelineService) HandlePlanJob(ctx context.Context, payload []byte) error {
	var job dto.PlanJobMessage
	if err := json.Unmarshal(payload, &job); err != nil {
		s.logger.Error("Pipeline", "Unparseable plan job, dropping", map[string]interface{}{"error": err.Error()})
		return nil // malformed payloads never become parseable, do not retry
	}

	// Invalidate any stale plan before producing the new one.
	if err := s.repo.DeletePlan(ctx, job.SessionID); err != nil {
		s.logger.Warn("Pipeline", "Stale plan invalidation failed", map[string]interface{}{
			"session": job.SessionID, "error": err.Error(),
		})
	}

	params, err := s.repo.GetParams(ctx, job.SessionID)
	if err != nil {
		s.logger.Warn("Pipeline", "Params unavailable, using defaults", map[string]interface{}{
			"session": job.SessionID, "error": err.Error(),
		})
	}

	plan, cached := s.cache.GetPlan(ctx, job.Query)
	if !cached {
		plan, err = s.planner.Plan(ctx, job.Query, params)
		if err != nil {
			s.logger.Error("Pipeline", "Planning failed", map[string]interface{}{
				"session": job.SessionID, "query": job.Query, "error": err.Error(),
			})
			return fmt.Errorf("plan stage for session %s: %w", job.SessionID, err)
		}
		s.cache.PutPlan(ctx, job.Query, plan)
	}

	if err := s.repo.SaveQuery(ctx, job.SessionID, job.Query); err != nil {
		return fmt.Errorf("persist query: %w", err)
	}
	if err := s.repo.SavePlan(ctx, job.SessionID, plan); err != nil {
		return fmt.Errorf("persist plan: %w", err)
	}

	if err := s.sink.AnnouncePlan(ctx, job.SessionID, plan); err != nil {
		s.logger.Warn("Pipeline", "Plan announcement failed", map[string]interface{}{
			"session": job.SessionID, "error": err.Error(),
		})
	}

	s.logger.Info("Pipeline", "Plan produced", map[string]interface{}{
		"session": job.SessionID, "steps": len(plan.Steps), "cached": cached,
	})

	if len(plan.Steps) == 0 {
		return nil
	}
	return s.enqueueGenerate(ctx, job.SessionID, plan.Steps[0], false, 0)
}

// HandleGenerateJob runs the generation stage in prefetch or emit mode.
func (s *pipelineService) HandleGenerateJob(ctx context.Context, payload []byte) error {
	var job dto.GenerateJobMessage
	if err := json.Unmarshal(payload, &job); err != nil {
		s.logger.Error("Pipeline", "Unparseable generate job, dropping", map[string]interface{}{"error": err.Error()})
		return nil
	}

	query, err := s.repo.GetQuery(ctx, job.SessionID)
	if errors.Is(err, contract.ErrSessionNotFound) {
		// The session expired while the job sat in the queue. Dropping it
		// beats redelivering a job that can never succeed.
		s.logger.Warn("Pipeline", "Generate job for expired session, dropping", map[string]interface{}{
			"session": job.SessionID, "step": job.Step.ID,
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("generate stage for session %s: %w", job.SessionID, err)
	}
	params, _ := s.repo.GetParams(ctx, job.SessionID)

	if job.Prefetch {
		return s.prefetchStep(ctx, job, query, params)
	}
	return s.emitStep(ctx, job, query, params)
}

// prefetchStep warms the cache for an upcoming step. It never emits, and a
// generation failure here is only logged: the emit job for the same step
// has its own placeholder fallback.
func (s *pipelineService) prefetchStep(ctx context.Context, job dto.GenerateJobMessage, query string, params model.SessionParams) error {
	if s.cache.Has(ctx, cache.ChunkKey(query, job.Step.ID)) {
		return nil
	}

	chunk, err := s.produceChunk(ctx, job.Step, params, query)
	if err != nil {
		s.logger.Warn("Pipeline", "Prefetch generation failed", map[string]interface{}{
			"session": job.SessionID, "step": job.Step.ID, "error": err.Error(),
		})
		return nil
	}
	s.cache.PutChunk(ctx, query, job.Step.ID, chunk)

	s.logger.Info("Pipeline", "Step prefetched", map[string]interface{}{
		"session": job.SessionID, "step": job.Step.ID,
	})
	return nil
}

// emitStep produces (or reuses) the chunk, hands it to delivery and
// schedules the next step's prefetch + paced emission.
func (s *pipelineService) emitStep(ctx context.Context, job dto.GenerateJobMessage, query string, params model.SessionParams) error {
	chunk, ok := s.cache.GetChunk(ctx, query, job.Step.ID)
	if !ok {
		var err error
		chunk, err = s.produceChunk(ctx, job.Step, params, query)
		if err != nil {
			// The session must keep moving: show a visible placeholder
			// instead of stalling on one failed step.
			s.logger.Error("Pipeline", "Generation failed, emitting placeholder", map[string]interface{}{
				"session": job.SessionID, "step": job.Step.ID, "error": err.Error(),
			})
			chunk = lecture.PlaceholderChunk(job.Step)
		}
		s.cache.PutChunk(ctx, query, job.Step.ID, chunk)
	}
	chunk.StepID = job.Step.ID

	if err := s.repo.SaveStepChunk(ctx, job.SessionID, job.Step.ID, chunk); err != nil {
		s.logger.Warn("Pipeline", "Persisting step chunk failed", map[string]interface{}{
			"session": job.SessionID, "step": job.Step.ID, "error": err.Error(),
		})
	}

	plan, err := s.repo.GetPlan(ctx, job.SessionID)
	if err != nil || plan == nil {
		return fmt.Errorf("emit step %d: session %s has no plan", job.Step.ID, job.SessionID)
	}

	if err := s.sink.DeliverChunk(ctx, job.SessionID, job.Step, chunk, plan.Summary()); err != nil {
		// Delivery handles its own retry/park; a sink error here is a
		// transport problem and is not allowed to stall the pipeline.
		s.logger.Warn("Pipeline", "Chunk handoff failed", map[string]interface{}{
			"session": job.SessionID, "step": job.Step.ID, "error": err.Error(),
		})
	}

	next := job.Step.ID + 1
	if next >= len(plan.Steps) {
		s.logger.Info("Pipeline", "Lecture complete", map[string]interface{}{
			"session": job.SessionID, "steps": len(plan.Steps),
		})
		return nil
	}

	nextStep := plan.Steps[next]
	if err := s.enqueueGenerate(ctx, job.SessionID, nextStep, true, 0); err != nil {
		s.logger.Error("Pipeline", "Scheduling prefetch failed", map[string]interface{}{
			"session": job.SessionID, "step": nextStep.ID, "error": err.Error(),
		})
	}
	dwell := pacingDelay(job.Step.Complexity)
	if err := s.enqueueGenerate(ctx, job.SessionID, nextStep, false, dwell); err != nil {
		return fmt.Errorf("scheduling emit for step %d: %w", nextStep.ID, err)
	}

	if err := s.repo.SetCursor(ctx, job.SessionID, nextStep.ID); err != nil {
		s.logger.Warn("Pipeline", "Cursor advance failed", map[string]interface{}{
			"session": job.SessionID, "step": nextStep.ID, "error": err.Error(),
		})
	}

	s.logger.Info("Pipeline", "Step emitted", map[string]interface{}{
		"session": job.SessionID, "step": job.Step.ID, "next_in_ms": dwell.Milliseconds(),
	})
	return nil
}

func (s *pipelineService) produceChunk(ctx context.Context, step model.Step, params model.SessionParams, query string) (*model.Chunk, error) {
	source, err := s.generator.Generate(ctx, step, params, query)
	if err != nil {
		return nil, err
	}
	chunk, err := s.compiler.Compile(source, step.Kind)
	if err != nil {
		return nil, err
	}
	chunk.StepID = step.ID
	return s.postproc.Process(chunk), nil
}

func (s *pipelineService) enqueueGenerate(ctx context.Context, sessionID string, step model.Step, prefetch bool, delay time.Duration) error {
	payload, err := json.Marshal(dto.GenerateJobMessage{
		SessionID: sessionID,
		Step:      step,
		Prefetch:  prefetch,
	})
	if err != nil {
		return err
	}
	if delay > 0 {
		return s.queue.PublishDelayed(ctx, s.cfg.GenerateSubject, payload, delay)
	}
	return s.queue.Publish(ctx, s.cfg.GenerateSubject, payload)
}
