package lecture

import (
	"context"
	"fmt"
	"strings"

	"ai-lecture-be/internal/model"
)

// StubPlanner produces a deterministic three-step plan from the query.
// Used by the simulation CLI and as a no-backend fallback.
type StubPlanner struct {
	Complexities []int
}

var _ Planner = &StubPlanner{}

func (p *StubPlanner) Plan(ctx context.Context, query string, params model.SessionParams) (*model.Plan, error) {
	complexities := p.Complexities
	if len(complexities) == 0 {
		complexities = []int{2, 5, 8}
	}

	topic := strings.TrimSpace(query)
	if topic == "" {
		topic = "Untitled topic"
	}

	plan := &model.Plan{
		Title:    fmt.Sprintf("Introduction to %s", topic),
		Subtitle: "An auto-generated walkthrough",
	}
	for i, c := range complexities {
		plan.Steps = append(plan.Steps, model.Step{
			ID:          i,
			Description: fmt.Sprintf("Part %d of %s", i+1, topic),
			Kind:        model.KindSlide,
			Complexity:  c,
			Tag:         fmt.Sprintf("part-%d", i+1),
		})
		plan.TOC = append(plan.TOC, model.TOCEntry{
			Label:  fmt.Sprintf("Part %d", i+1),
			StepID: i,
		})
	}
	return plan, nil
}

// StubGenerator emits a fixed action script per step.
type StubGenerator struct{}

var _ Generator = StubGenerator{}

func (StubGenerator) Generate(ctx context.Context, step model.Step, params model.SessionParams, query string) (string, error) {
	return fmt.Sprintf(`{"actions": [
		{"type": "title", "content": "Step %d"},
		{"type": "label", "content": %q},
		{"type": "label", "content": "Generated for query: %s"}
	]}`, step.ID+1, step.Description, strings.ReplaceAll(query, `"`, "'")), nil
}
