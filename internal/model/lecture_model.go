package model

import "time"

// Compiler targets for generated step content.
const (
	KindSlide   = "slide"
	KindDiagram = "diagram"
	KindMath    = "math"
	KindCode    = "code"
)

// Plan is the full lecture outline for one session. Produced exactly once by
// the plan stage and read-only afterwards.
type Plan struct {
	Title    string     `json:"title"`
	Subtitle string     `json:"subtitle"`
	TOC      []TOCEntry `json:"toc"`
	Steps    []Step     `json:"steps"`
}

type TOCEntry struct {
	Label   string `json:"label"`
	StepID  int    `json:"step_id"`
	Section string `json:"section,omitempty"`
}

// Step is one unit of lecture content. Complexity (1-10) keys the pacing
// delay between this step and the next.
type Step struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Complexity  int    `json:"complexity"`
	Tag         string `json:"tag,omitempty"`
}

// PlanSummary travels with every rendered chunk so a client that joined
// mid-lecture can still render the header.
type PlanSummary struct {
	Title    string     `json:"title"`
	Subtitle string     `json:"subtitle"`
	TOC      []TOCEntry `json:"toc"`
}

func (p *Plan) Summary() PlanSummary {
	return PlanSummary{Title: p.Title, Subtitle: p.Subtitle, TOC: p.TOC}
}

// Action is one renderable instruction inside a chunk.
type Action struct {
	Type    string                 `json:"type"`
	Content string                 `json:"content"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// Action types understood by the client renderer.
const (
	ActionTitle   = "title"
	ActionLabel   = "label"
	ActionFormula = "formula"
	ActionDraw    = "draw"
	ActionCode    = "code"
)

// Chunk is the generated artifact for one step. Chunks for equivalent
// queries are interchangeable across sessions (content-addressed cache).
type Chunk struct {
	StepID      int       `json:"step_id"`
	Kind        string    `json:"kind"`
	Actions     []Action  `json:"actions"`
	Placeholder bool      `json:"placeholder,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SessionParams are per-session generation knobs, stored alongside the query.
type SessionParams struct {
	Audience  string `json:"audience,omitempty"`
	Language  string `json:"language,omitempty"`
	MaxSteps  int    `json:"max_steps,omitempty"`
	Verbosity string `json:"verbosity,omitempty"`
}
