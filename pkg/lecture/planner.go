package lecture

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-lecture-be/internal/model"
	"ai-lecture-be/pkg/breaker"
	"ai-lecture-be/pkg/llm"
)

const planPrompt = `You are a lecture planner. Decompose the topic below into an ordered
sequence of teaching steps. Respond with ONE JSON object only:
{
  "title": "...",
  "subtitle": "...",
  "toc": [{"label": "...", "step_id": 0, "section": "..."}],
  "steps": [{"id": 0, "description": "...", "kind": "slide|diagram|math|code", "complexity": 1, "tag": "..."}]
}
Rules: step ids start at 0 and increase by one. complexity is 1-10 where 10
is hardest. 3 to 8 steps unless the audience hint says otherwise.

Topic: %s
Audience: %s
Language: %s`

// LLMPlanner builds lecture plans through an LLM provider. Every call runs
// through its own circuit breaker so a dead model endpoint fails fast
// instead of stacking up blocked plan jobs.
type LLMPlanner struct {
	provider llm.LLMProvider
	breaker  *breaker.Breaker
}

var _ Planner = &LLMPlanner{}

func NewLLMPlanner(provider llm.LLMProvider, b *breaker.Breaker) *LLMPlanner {
	return &LLMPlanner{provider: provider, breaker: b}
}

func (p *LLMPlanner) Plan(ctx context.Context, query string, params model.SessionParams) (*model.Plan, error) {
	audience := params.Audience
	if audience == "" {
		audience = "general"
	}
	language := params.Language
	if language == "" {
		language = "english"
	}
	prompt := fmt.Sprintf(planPrompt, query, audience, language)

	var raw string
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = p.provider.Generate(ctx, prompt,
			llm.WithTemperature(0.4),
			llm.WithJSONMode(),
		)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	plan, err := parsePlan(raw)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	if params.MaxSteps > 0 && len(plan.Steps) > params.MaxSteps {
		plan.Steps = plan.Steps[:params.MaxSteps]
	}
	return plan, nil
}

func parsePlan(raw string) (*model.Plan, error) {
	var plan model.Plan
	if err := json.Unmarshal([]byte(extractJSON(raw)), &plan); err != nil {
		return nil, fmt.Errorf("parse plan response: %w", err)
	}
	if plan.Title == "" {
		return nil, fmt.Errorf("plan response has no title")
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan response has no steps")
	}

	// Re-index defensively: ids must be unique and order-stable.
	for i := range plan.Steps {
		plan.Steps[i].ID = i
		if plan.Steps[i].Complexity < 1 {
			plan.Steps[i].Complexity = 1
		}
		if plan.Steps[i].Complexity > 10 {
			plan.Steps[i].Complexity = 10
		}
		if plan.Steps[i].Kind == "" {
			plan.Steps[i].Kind = model.KindSlide
		}
	}
	return &plan, nil
}

// extractJSON tolerates code fences and prose around the JSON document.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}
