package contract

import (
	"context"
	"errors"

	"ai-lecture-be/internal/model"
)

// ErrSessionNotFound marks a session whose keys have expired or were
// never written. Callers can treat it as permanent rather than retrying.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository is the shared-store view of a session: query, plan,
// cursor, params and per-step chunks live here so any worker process can
// resume work. Sessions are never explicitly destroyed; keys expire.
type SessionRepository interface {
	SaveQuery(ctx context.Context, sessionID, query string) error
	GetQuery(ctx context.Context, sessionID string) (string, error)

	// SavePlan stores a fully produced plan and resets the cursor to 0.
	// A plan is never partially visible.
	SavePlan(ctx context.Context, sessionID string, plan *model.Plan) error
	GetPlan(ctx context.Context, sessionID string) (*model.Plan, error)
	DeletePlan(ctx context.Context, sessionID string) error

	SetCursor(ctx context.Context, sessionID string, step int) error
	GetCursor(ctx context.Context, sessionID string) (int, error)

	SaveParams(ctx context.Context, sessionID string, params model.SessionParams) error
	GetParams(ctx context.Context, sessionID string) (model.SessionParams, error)

	SaveStepChunk(ctx context.Context, sessionID string, stepID int, chunk *model.Chunk) error

	ParkDelivery(ctx context.Context, parked *model.ParkedDelivery) error
	ListParked(ctx context.Context, sessionID string) ([]*model.ParkedDelivery, error)
	DeleteParked(ctx context.Context, sessionID string, stepID int) error
}
