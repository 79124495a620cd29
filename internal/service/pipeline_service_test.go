package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-lecture-be/internal/config"
	"ai-lecture-be/internal/dto"
	"ai-lecture-be/internal/model"
	"ai-lecture-be/internal/repository/memory"
	"ai-lecture-be/pkg/cache"
	"ai-lecture-be/pkg/lecture"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queuedJob struct {
	Subject string
	Job     dto.GenerateJobMessage
	Delay   time.Duration
}

// recordingQueue captures scheduled jobs instead of dispatching them.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []queuedJob
}

func (q *recordingQueue) Publish(ctx context.Context, subject string, payload []byte) error {
	return q.PublishDelayed(ctx, subject, payload, 0)
}

func (q *recordingQueue) PublishDelayed(ctx context.Context, subject string, payload []byte, delay time.Duration) error {
	var job dto.GenerateJobMessage
	if err := json.Unmarshal(payload, &job); err != nil {
		return err
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, queuedJob{Subject: subject, Job: job, Delay: delay})
	q.mu.Unlock()
	return nil
}

func (q *recordingQueue) all() []queuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queuedJob(nil), q.jobs...)
}

// mapCache implements the pipeline's cache view in memory with the shared
// key scheme.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]interface{}
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]interface{})}
}

func (m *mapCache) GetPlan(ctx context.Context, query string) (*model.Plan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if x, ok := m.entries[cache.PlanKey(query)]; ok {
		return x.(*model.Plan), true
	}
	return nil, false
}

func (m *mapCache) PutPlan(ctx context.Context, query string, plan *model.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cache.PlanKey(query)] = plan
}

func (m *mapCache) GetChunk(ctx context.Context, query string, stepID int) (*model.Chunk, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if x, ok := m.entries[cache.ChunkKey(query, stepID)]; ok {
		return x.(*model.Chunk), true
	}
	return nil, false
}

func (m *mapCache) PutChunk(ctx context.Context, query string, stepID int, chunk *model.Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cache.ChunkKey(query, stepID)] = chunk
}

func (m *mapCache) Has(ctx context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

type deliveredChunk struct {
	SessionID string
	Step      model.Step
	Chunk     *model.Chunk
	Plan      model.PlanSummary
}

type recordingSink struct {
	mu     sync.Mutex
	plans  []*model.Plan
	chunks []deliveredChunk
}

func (s *recordingSink) AnnouncePlan(ctx context.Context, sessionID string, plan *model.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = append(s.plans, plan)
	return nil
}

func (s *recordingSink) DeliverChunk(ctx context.Context, sessionID string, step model.Step, chunk *model.Chunk, plan model.PlanSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, deliveredChunk{SessionID: sessionID, Step: step, Chunk: chunk, Plan: plan})
	return nil
}

func (s *recordingSink) delivered() []deliveredChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]deliveredChunk(nil), s.chunks...)
}

type failingGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *failingGenerator) Generate(ctx context.Context, step model.Step, params model.SessionParams, query string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return "", errors.New("model unavailable")
}

func (g *failingGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type pipelineFixture struct {
	svc   IPipelineService
	queue *recordingQueue
	repo  *memory.SessionRepository
	cache *mapCache
	sink  *recordingSink
}

func newPipelineFixture(t *testing.T, generator lecture.Generator) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		queue: &recordingQueue{},
		repo:  memory.NewSessionRepository(),
		cache: newMapCache(),
		sink:  &recordingSink{},
	}
	f.svc = NewPipelineService(
		config.PipelineConfig{
			StreamName:      "LECTURE",
			PlanSubject:     "lecture.plan",
			GenerateSubject: "lecture.generate",
		},
		f.queue,
		f.repo,
		f.cache,
		&lecture.StubPlanner{Complexities: []int{2, 5, 8}},
		generator,
		lecture.NewActionCompiler(),
		lecture.NewChunkPostProcessor(),
		f.sink,
		nopLogger{},
	)
	return f
}

func planPayload(t *testing.T, sessionID, query string) []byte {
	t.Helper()
	payload, err := json.Marshal(dto.PlanJobMessage{SessionID: sessionID, Query: query})
	require.NoError(t, err)
	return payload
}

func generatePayload(t *testing.T, sessionID string, step model.Step, prefetch bool) []byte {
	t.Helper()
	payload, err := json.Marshal(dto.GenerateJobMessage{SessionID: sessionID, Step: step, Prefetch: prefetch})
	require.NoError(t, err)
	return payload
}

func TestPlanJobProducesPlanAndSchedulesFirstStep(t *testing.T) {
	f := newPipelineFixture(t, lecture.StubGenerator{})

	err := f.svc.HandlePlanJob(context.Background(), planPayload(t, "sess-1", "the water cycle"))
	require.NoError(t, err)

	plan, err := f.repo.GetPlan(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Len(t, plan.Steps, 3)

	cursor, err := f.repo.GetCursor(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, cursor)

	require.Len(t, f.sink.plans, 1)

	jobs := f.queue.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, "lecture.generate", jobs[0].Subject)
	assert.Equal(t, 0, jobs[0].Job.Step.ID)
	assert.False(t, jobs[0].Job.Prefetch)
	assert.Equal(t, time.Duration(0), jobs[0].Delay)
}

func TestPlanJobReusesCachedPlan(t *testing.T) {
	f := newPipelineFixture(t, lecture.StubGenerator{})

	cached := &model.Plan{
		Title: "Cached Lecture",
		Steps: []model.Step{{ID: 0, Description: "only step", Kind: model.KindSlide, Complexity: 3}},
	}
	f.cache.PutPlan(context.Background(), "repeat query", cached)

	err := f.svc.HandlePlanJob(context.Background(), planPayload(t, "sess-2", "repeat query"))
	require.NoError(t, err)

	plan, err := f.repo.GetPlan(context.Background(), "sess-2")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "Cached Lecture", plan.Title)
}

func TestPlanJobDropsMalformedPayload(t *testing.T) {
	f := newPipelineFixture(t, lecture.StubGenerator{})

	err := f.svc.HandlePlanJob(context.Background(), []byte("{not json"))
	assert.NoError(t, err, "malformed payloads are dropped, not retried")
	assert.Empty(t, f.queue.all())
}

func TestEmitStepDeliversAndPacesNext(t *testing.T) {
	f := newPipelineFixture(t, lecture.StubGenerator{})
	require.NoError(t, f.svc.HandlePlanJob(context.Background(), planPayload(t, "sess-1", "the water cycle")))
	plan, _ := f.repo.GetPlan(context.Background(), "sess-1")

	err := f.svc.HandleGenerateJob(context.Background(), generatePayload(t, "sess-1", plan.Steps[0], false))
	require.NoError(t, err)

	delivered := f.sink.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, 0, delivered[0].Step.ID)
	assert.False(t, delivered[0].Chunk.Placeholder)

	// Step 0 emit schedules step 1 twice: an immediate prefetch plus the
	// paced emit keyed on step 0's complexity.
	jobs := f.queue.all()[1:] // skip the plan stage's initial emit
	require.Len(t, jobs, 2)
	assert.Equal(t, 1, jobs[0].Job.Step.ID)
	assert.True(t, jobs[0].Job.Prefetch)
	assert.Equal(t, time.Duration(0), jobs[0].Delay)
	assert.Equal(t, 1, jobs[1].Job.Step.ID)
	assert.False(t, jobs[1].Job.Prefetch)
	assert.Equal(t, 12*time.Second, jobs[1].Delay, "complexity 2 paces at 12s")

	cursor, err := f.repo.GetCursor(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cursor)
}

func TestFinalStepEndsSession(t *testing.T) {
	f := newPipelineFixture(t, lecture.StubGenerator{})
	require.NoError(t, f.svc.HandlePlanJob(context.Background(), planPayload(t, "sess-1", "the water cycle")))
	plan, _ := f.repo.GetPlan(context.Background(), "sess-1")
	last := plan.Steps[len(plan.Steps)-1]

	before := len(f.queue.all())
	err := f.svc.HandleGenerateJob(context.Background(), generatePayload(t, "sess-1", last, false))
	require.NoError(t, err)

	assert.Len(t, f.sink.delivered(), 1)
	assert.Len(t, f.queue.all(), before, "no jobs scheduled past the final step")
}

func TestEmitStepFallsBackToPlaceholder(t *testing.T) {
	generator := &failingGenerator{}
	f := newPipelineFixture(t, generator)
	require.NoError(t, f.svc.HandlePlanJob(context.Background(), planPayload(t, "sess-1", "the water cycle")))
	plan, _ := f.repo.GetPlan(context.Background(), "sess-1")

	err := f.svc.HandleGenerateJob(context.Background(), generatePayload(t, "sess-1", plan.Steps[0], false))
	require.NoError(t, err, "generation failure must not stall the session")

	delivered := f.sink.delivered()
	require.Len(t, delivered, 1)
	assert.True(t, delivered[0].Chunk.Placeholder)
	assert.NotEmpty(t, delivered[0].Chunk.Actions)

	// The session keeps moving: the next step is still scheduled.
	jobs := f.queue.all()
	assert.Equal(t, 1, jobs[len(jobs)-1].Job.Step.ID)
}

func TestPrefetchWarmsCacheOnce(t *testing.T) {
	generator := &failingGenerator{}
	f := newPipelineFixture(t, generator)
	require.NoError(t, f.repo.SaveQuery(context.Background(), "sess-1", "the water cycle"))

	step := model.Step{ID: 1, Description: "part two", Kind: model.KindSlide, Complexity: 5}
	f.cache.PutChunk(context.Background(), "the water cycle", 1, &model.Chunk{StepID: 1})

	err := f.svc.HandleGenerateJob(context.Background(), generatePayload(t, "sess-1", step, true))
	require.NoError(t, err)

	assert.Equal(t, 0, generator.callCount(), "warm cache skips generation")
	assert.Empty(t, f.sink.delivered(), "prefetch never emits")
}

func TestPrefetchFailureIsSilent(t *testing.T) {
	generator := &failingGenerator{}
	f := newPipelineFixture(t, generator)
	require.NoError(t, f.repo.SaveQuery(context.Background(), "sess-1", "the water cycle"))

	step := model.Step{ID: 1, Description: "part two", Kind: model.KindSlide, Complexity: 5}
	err := f.svc.HandleGenerateJob(context.Background(), generatePayload(t, "sess-1", step, true))

	assert.NoError(t, err, "prefetch failures rely on the emit job's fallback")
	assert.Equal(t, 1, generator.callCount())
	assert.False(t, f.cache.Has(context.Background(), cache.ChunkKey("the water cycle", 1)))
}

func TestGenerateJobForExpiredSessionIsDropped(t *testing.T) {
	f := newPipelineFixture(t, lecture.StubGenerator{})

	// Session keys are gone; the job can never succeed, so returning an
	// error would only trigger endless redelivery.
	step := model.Step{ID: 0, Kind: model.KindSlide}
	err := f.svc.HandleGenerateJob(context.Background(), generatePayload(t, "ghost", step, false))
	assert.NoError(t, err)
	assert.Empty(t, f.sink.delivered())
	assert.Empty(t, f.queue.all())
}

func TestEmitStepReusesPrefetchedChunk(t *testing.T) {
	generator := &failingGenerator{}
	f := newPipelineFixture(t, generator)
	require.NoError(t, f.repo.SaveQuery(context.Background(), "sess-1", "the water cycle"))
	require.NoError(t, f.repo.SavePlan(context.Background(), "sess-1", &model.Plan{
		Title: "Lecture",
		Steps: []model.Step{{ID: 0, Description: "intro", Kind: model.KindSlide, Complexity: 2}},
	}))

	warmed := &model.Chunk{
		StepID:  0,
		Kind:    model.KindSlide,
		Actions: []model.Action{{Type: model.ActionTitle, Content: "Warmed"}},
	}
	f.cache.PutChunk(context.Background(), "the water cycle", 0, warmed)

	step := model.Step{ID: 0, Description: "intro", Kind: model.KindSlide, Complexity: 2}
	err := f.svc.HandleGenerateJob(context.Background(), generatePayload(t, "sess-1", step, false))
	require.NoError(t, err)

	assert.Equal(t, 0, generator.callCount(), "cached chunk is emitted as-is")
	delivered := f.sink.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, "Warmed", delivered[0].Chunk.Actions[0].Content)
}
