package lecture

import (
	"context"

	"ai-lecture-be/internal/model"
)

// Planner decomposes a raw user query into an ordered lecture plan.
// May fail with any error; the pipeline imposes no retry semantics of its
// own (the job queue redelivers failed plan jobs).
type Planner interface {
	Plan(ctx context.Context, query string, params model.SessionParams) (*model.Plan, error)
}

// Generator produces the raw source artifact for one step. The artifact is
// an action script in the intermediate JSON form understood by Compile.
type Generator interface {
	Generate(ctx context.Context, step model.Step, params model.SessionParams, query string) (string, error)
}

// Compiler turns a source artifact into a renderable chunk for the target
// content kind.
type Compiler interface {
	Compile(source string, kind string) (*model.Chunk, error)
}

// PostProcessor normalizes a compiled chunk before it is cached.
type PostProcessor interface {
	Process(chunk *model.Chunk) *model.Chunk
}
