package lecture

import (
	"context"
	"fmt"

	"ai-lecture-be/internal/model"
	"ai-lecture-be/pkg/breaker"
	"ai-lecture-be/pkg/llm"
)

const generatePrompt = `You are generating one step of a lecture on: %s

Step %d: %s
Target renderer: %s
Audience: %s

Respond with ONE JSON object only, an action script:
{"actions": [{"type": "title|label|formula|draw|code", "content": "..."}]}
Start with exactly one title action. Keep labels short (one sentence).
Use formula actions for math notation, code actions for source listings.`

// LLMGenerator produces the source artifact for one step through an LLM
// provider, breaker-guarded like the planner.
type LLMGenerator struct {
	provider llm.LLMProvider
	breaker  *breaker.Breaker
}

var _ Generator = &LLMGenerator{}

func NewLLMGenerator(provider llm.LLMProvider, b *breaker.Breaker) *LLMGenerator {
	return &LLMGenerator{provider: provider, breaker: b}
}

func (g *LLMGenerator) Generate(ctx context.Context, step model.Step, params model.SessionParams, query string) (string, error) {
	audience := params.Audience
	if audience == "" {
		audience = "general"
	}
	prompt := fmt.Sprintf(generatePrompt, query, step.ID, step.Description, step.Kind, audience)

	var raw string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = g.provider.Generate(ctx, prompt,
			llm.WithTemperature(0.6),
			llm.WithJSONMode(),
		)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("generator step %d: %w", step.ID, err)
	}
	return raw, nil
}
