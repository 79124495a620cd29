package lecture

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ai-lecture-be/internal/model"
)

// ActionCompiler parses the intermediate action script into a chunk for the
// target kind. It is deliberately tolerant: unknown action types are kept
// verbatim for the client to ignore.
type ActionCompiler struct{}

var _ Compiler = ActionCompiler{}

func NewActionCompiler() ActionCompiler { return ActionCompiler{} }

type actionScript struct {
	Actions []model.Action `json:"actions"`
}

func (ActionCompiler) Compile(source string, kind string) (*model.Chunk, error) {
	var script actionScript
	if err := json.Unmarshal([]byte(extractJSON(source)), &script); err != nil {
		return nil, fmt.Errorf("compile action script: %w", err)
	}
	if len(script.Actions) == 0 {
		return nil, fmt.Errorf("action script has no actions")
	}

	if kind == "" {
		kind = model.KindSlide
	}

	return &model.Chunk{
		Kind:        kind,
		Actions:     script.Actions,
		GeneratedAt: time.Now(),
	}, nil
}

// ChunkPostProcessor normalizes compiled chunks: guarantees a leading title
// action, trims whitespace and drops empty actions.
type ChunkPostProcessor struct{}

var _ PostProcessor = ChunkPostProcessor{}

func NewChunkPostProcessor() ChunkPostProcessor { return ChunkPostProcessor{} }

func (ChunkPostProcessor) Process(chunk *model.Chunk) *model.Chunk {
	out := make([]model.Action, 0, len(chunk.Actions))
	for _, a := range chunk.Actions {
		a.Content = strings.TrimSpace(a.Content)
		if a.Content == "" {
			continue
		}
		if a.Type == "" {
			a.Type = model.ActionLabel
		}
		out = append(out, a)
	}

	if len(out) == 0 || out[0].Type != model.ActionTitle {
		title := model.Action{Type: model.ActionTitle, Content: "Untitled"}
		for _, a := range out {
			if a.Type == model.ActionTitle {
				title = a
				break
			}
		}
		filtered := []model.Action{title}
		for _, a := range out {
			if a.Type != model.ActionTitle {
				filtered = append(filtered, a)
			}
		}
		out = filtered
	}

	chunk.Actions = out
	return chunk
}

// PlaceholderChunk is the visible fallback when generation for one step
// fails: a title plus in-progress labels, so the session keeps advancing
// instead of stalling on the failed step.
func PlaceholderChunk(step model.Step) *model.Chunk {
	return &model.Chunk{
		StepID: step.ID,
		Kind:   step.Kind,
		Actions: []model.Action{
			{Type: model.ActionTitle, Content: fmt.Sprintf("Step %d", step.ID+1)},
			{Type: model.ActionLabel, Content: step.Description},
			{Type: model.ActionLabel, Content: "Content is still being prepared..."},
		},
		Placeholder: true,
		GeneratedAt: time.Now(),
	}
}
