package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"ai-lecture-be/internal/config"
	"ai-lecture-be/internal/dto"
	"ai-lecture-be/internal/model"
	"ai-lecture-be/internal/pkg/logger"
	"ai-lecture-be/internal/repository/memory"
	"ai-lecture-be/internal/service"
	"ai-lecture-be/pkg/cache"
	"ai-lecture-be/pkg/lecture"

	"github.com/fatih/color"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// Runs the whole pipeline in-process against stub planner/generator:
// no Redis, no NATS, no LLM. Prints what a connected client would see.
func main() {
	query := flag.String("query", "the water cycle", "lecture query to run")
	complexitiesFlag := flag.String("complexities", "2,5,8", "per-step complexity scores")
	speedup := flag.Int("speedup", 10, "divide pacing delays by this factor")
	flag.Parse()

	complexities, err := parseComplexities(*complexitiesFlag)
	if err != nil {
		log.Fatalf("Invalid -complexities: %v", err)
	}
	if *speedup < 1 {
		*speedup = 1
	}

	cfg := config.Load()
	simLogger := logger.NewIsolatedLogger("logs/simulate.log")
	repo := memory.NewSessionRepository()

	printer := &chunkPrinter{done: make(chan struct{}), remaining: len(complexities)}
	queue := &localQueue{cfg: cfg.Pipeline, speedup: *speedup}

	pipeline := service.NewPipelineService(
		cfg.Pipeline,
		queue,
		repo,
		newMemoryCache(),
		&lecture.StubPlanner{Complexities: complexities},
		lecture.StubGenerator{},
		lecture.NewActionCompiler(),
		lecture.NewChunkPostProcessor(),
		printer,
		simLogger,
	)
	queue.pipeline = pipeline

	sessionID := uuid.NewString()
	color.Cyan("=== Lecture Pipeline Simulation ===")
	fmt.Printf("Session:  %s\nQuery:    %q\nSpeedup:  %dx\n\n", sessionID, *query, *speedup)

	payload, _ := json.Marshal(dto.PlanJobMessage{SessionID: sessionID, Query: *query})
	if err := queue.Publish(context.Background(), cfg.Pipeline.PlanSubject, payload); err != nil {
		log.Fatalf("Failed to enqueue plan job: %v", err)
	}

	select {
	case <-printer.done:
		color.Green("\nAll %d steps delivered.", len(complexities))
	case <-time.After(5 * time.Minute):
		color.Red("\nTimed out waiting for delivery.")
	}
}

func parseComplexities(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		c, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// localQueue dispatches jobs straight back into the pipeline, honoring
// delays (scaled down) so pacing is observable without waiting minutes.
type localQueue struct {
	cfg      config.PipelineConfig
	pipeline service.IPipelineService
	speedup  int
}

func (q *localQueue) Publish(ctx context.Context, subject string, payload []byte) error {
	return q.PublishDelayed(ctx, subject, payload, 0)
}

// scaledDelay divides a pacing delay by the speedup factor, treating
// anything below 1 as real time.
func (q *localQueue) scaledDelay(delay time.Duration) time.Duration {
	factor := q.speedup
	if factor < 1 {
		factor = 1
	}
	return delay / time.Duration(factor)
}

func (q *localQueue) PublishDelayed(ctx context.Context, subject string, payload []byte, delay time.Duration) error {
	go func() {
		if delay > 0 {
			time.Sleep(q.scaledDelay(delay))
		}
		var err error
		switch subject {
		case q.cfg.PlanSubject:
			err = q.pipeline.HandlePlanJob(ctx, payload)
		case q.cfg.GenerateSubject:
			err = q.pipeline.HandleGenerateJob(ctx, payload)
		default:
			err = fmt.Errorf("unknown subject %s", subject)
		}
		if err != nil {
			color.Red("Job failed on %s: %v", subject, err)
		}
	}()
	return nil
}

// memoryCache is an in-process stand-in for the shared content cache,
// using the same key scheme.
type memoryCache struct {
	local *gocache.Cache
}

func newMemoryCache() *memoryCache {
	return &memoryCache{local: gocache.New(time.Hour, 10*time.Minute)}
}

func (m *memoryCache) GetPlan(ctx context.Context, query string) (*model.Plan, bool) {
	if x, found := m.local.Get(cache.PlanKey(query)); found {
		return x.(*model.Plan), true
	}
	return nil, false
}

func (m *memoryCache) PutPlan(ctx context.Context, query string, plan *model.Plan) {
	m.local.Set(cache.PlanKey(query), plan, gocache.DefaultExpiration)
}

func (m *memoryCache) GetChunk(ctx context.Context, query string, stepID int) (*model.Chunk, bool) {
	if x, found := m.local.Get(cache.ChunkKey(query, stepID)); found {
		return x.(*model.Chunk), true
	}
	return nil, false
}

func (m *memoryCache) PutChunk(ctx context.Context, query string, stepID int, chunk *model.Chunk) {
	m.local.Set(cache.ChunkKey(query, stepID), chunk, gocache.DefaultExpiration)
}

func (m *memoryCache) Has(ctx context.Context, key string) bool {
	_, found := m.local.Get(key)
	return found
}

// chunkPrinter renders delivered content to the terminal the way a
// connected client would display it.
type chunkPrinter struct {
	done      chan struct{}
	remaining int
}

func (p *chunkPrinter) AnnouncePlan(ctx context.Context, sessionID string, plan *model.Plan) error {
	color.Yellow("PLAN: %s", plan.Title)
	if plan.Subtitle != "" {
		fmt.Printf("      %s\n", plan.Subtitle)
	}
	for _, entry := range plan.TOC {
		fmt.Printf("      %d. %s\n", entry.StepID+1, entry.Label)
	}
	fmt.Println()
	return nil
}

func (p *chunkPrinter) DeliverChunk(ctx context.Context, sessionID string, step model.Step, chunk *model.Chunk, plan model.PlanSummary) error {
	header := color.New(color.FgGreen, color.Bold)
	if chunk.Placeholder {
		header = color.New(color.FgRed, color.Bold)
	}
	header.Printf("STEP %d/%d (complexity %d)\n", step.ID+1, len(plan.TOC), step.Complexity)
	for _, action := range chunk.Actions {
		fmt.Printf("  [%s] %s\n", action.Type, action.Content)
	}
	fmt.Println()

	p.remaining--
	if p.remaining == 0 {
		close(p.done)
	}
	return nil
}
