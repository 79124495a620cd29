package lecture

import (
	"testing"

	"ai-lecture-be/internal/model"
)

func TestCompileActionScript(t *testing.T) {
	source := "```json\n{\"actions\": [{\"type\": \"title\", \"content\": \"Limits\"}, {\"type\": \"formula\", \"content\": \"lim_{x->0}\"}]}\n```"

	chunk, err := NewActionCompiler().Compile(source, model.KindMath)
	if err != nil {
		t.Fatal(err)
	}
	if chunk.Kind != model.KindMath {
		t.Errorf("kind = %q", chunk.Kind)
	}
	if len(chunk.Actions) != 2 || chunk.Actions[0].Type != model.ActionTitle {
		t.Errorf("actions = %+v", chunk.Actions)
	}
}

func TestCompileRejectsEmptyScript(t *testing.T) {
	if _, err := NewActionCompiler().Compile(`{"actions": []}`, ""); err == nil {
		t.Fatal("expected error for empty action list")
	}
	if _, err := NewActionCompiler().Compile("not json at all", ""); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestPostProcessEnforcesLeadingTitle(t *testing.T) {
	chunk := &model.Chunk{Actions: []model.Action{
		{Type: model.ActionLabel, Content: "  hello  "},
		{Type: model.ActionTitle, Content: "Real Title"},
		{Type: model.ActionLabel, Content: ""},
	}}

	got := NewChunkPostProcessor().Process(chunk)
	if got.Actions[0].Type != model.ActionTitle || got.Actions[0].Content != "Real Title" {
		t.Fatalf("first action = %+v", got.Actions[0])
	}
	if len(got.Actions) != 2 {
		t.Fatalf("len = %d, want empty label dropped", len(got.Actions))
	}
	if got.Actions[1].Content != "hello" {
		t.Errorf("label not trimmed: %q", got.Actions[1].Content)
	}
}

func TestPlaceholderChunkShape(t *testing.T) {
	step := model.Step{ID: 1, Description: "The chain rule", Kind: model.KindMath}
	chunk := PlaceholderChunk(step)

	if !chunk.Placeholder {
		t.Error("placeholder flag not set")
	}
	if len(chunk.Actions) != 3 {
		t.Fatalf("actions = %d, want title + 2 labels", len(chunk.Actions))
	}
	if chunk.Actions[0].Type != model.ActionTitle {
		t.Errorf("first action = %q", chunk.Actions[0].Type)
	}
	if chunk.Actions[1].Content != "The chain rule" {
		t.Errorf("second action should echo the step description, got %q", chunk.Actions[1].Content)
	}
	if chunk.Actions[2].Type != model.ActionLabel {
		t.Errorf("third action = %q", chunk.Actions[2].Type)
	}
}

func TestParsePlanReindexes(t *testing.T) {
	raw := `{"title": "T", "steps": [
		{"id": 7, "description": "a", "complexity": 0},
		{"id": 7, "description": "b", "complexity": 99}
	]}`

	plan, err := parsePlan(raw)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Steps[0].ID != 0 || plan.Steps[1].ID != 1 {
		t.Errorf("ids not reindexed: %+v", plan.Steps)
	}
	if plan.Steps[0].Complexity != 1 || plan.Steps[1].Complexity != 10 {
		t.Errorf("complexity not clamped: %+v", plan.Steps)
	}
	if plan.Steps[0].Kind != "slide" {
		t.Errorf("kind default missing: %q", plan.Steps[0].Kind)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go: {\"a\":1} enjoy", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
