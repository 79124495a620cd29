package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-lecture-be/internal/model"
	"ai-lecture-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// SessionRepository is an in-memory session store with the same expiry
// semantics as the Redis one. Used by the simulation binary and tests
// where a shared store is overkill.
type SessionRepository struct {
	cache *cache.Cache
}

var _ contract.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository() *SessionRepository {
	// Sessions expire after 24 hours, purged every 10 minutes
	c := cache.New(24*time.Hour, 10*time.Minute)
	return &SessionRepository{
		cache: c,
	}
}

func (r *SessionRepository) SaveQuery(ctx context.Context, sessionID, query string) error {
	r.cache.Set(queryKey(sessionID), query, cache.DefaultExpiration)
	return nil
}

func (r *SessionRepository) GetQuery(ctx context.Context, sessionID string) (string, error) {
	if x, found := r.cache.Get(queryKey(sessionID)); found {
		return x.(string), nil
	}
	return "", fmt.Errorf("session %s: %w", sessionID, contract.ErrSessionNotFound)
}

func (r *SessionRepository) SavePlan(ctx context.Context, sessionID string, plan *model.Plan) error {
	r.cache.Set(planKey(sessionID), plan, cache.DefaultExpiration)
	return r.SetCursor(ctx, sessionID, 0)
}

func (r *SessionRepository) GetPlan(ctx context.Context, sessionID string) (*model.Plan, error) {
	if x, found := r.cache.Get(planKey(sessionID)); found {
		return x.(*model.Plan), nil
	}
	return nil, nil
}

func (r *SessionRepository) DeletePlan(ctx context.Context, sessionID string) error {
	r.cache.Delete(planKey(sessionID))
	return nil
}

func (r *SessionRepository) SetCursor(ctx context.Context, sessionID string, step int) error {
	r.cache.Set(cursorKey(sessionID), step, cache.DefaultExpiration)
	return nil
}

func (r *SessionRepository) GetCursor(ctx context.Context, sessionID string) (int, error) {
	if x, found := r.cache.Get(cursorKey(sessionID)); found {
		return x.(int), nil
	}
	return 0, nil
}

func (r *SessionRepository) SaveParams(ctx context.Context, sessionID string, params model.SessionParams) error {
	r.cache.Set(paramsKey(sessionID), params, cache.DefaultExpiration)
	return nil
}

func (r *SessionRepository) GetParams(ctx context.Context, sessionID string) (model.SessionParams, error) {
	if x, found := r.cache.Get(paramsKey(sessionID)); found {
		return x.(model.SessionParams), nil
	}
	return model.SessionParams{}, nil
}

func (r *SessionRepository) SaveStepChunk(ctx context.Context, sessionID string, stepID int, chunk *model.Chunk) error {
	r.cache.Set(stepChunkKey(sessionID, stepID), chunk, cache.DefaultExpiration)
	return nil
}

func (r *SessionRepository) ParkDelivery(ctx context.Context, parked *model.ParkedDelivery) error {
	r.cache.Set(pendingKey(parked.SessionID, parked.StepID), parked, cache.DefaultExpiration)
	return nil
}

func (r *SessionRepository) ListParked(ctx context.Context, sessionID string) ([]*model.ParkedDelivery, error) {
	prefix := fmt.Sprintf("pending:%s:", sessionID)
	var parked []*model.ParkedDelivery
	for key, item := range r.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			parked = append(parked, item.Object.(*model.ParkedDelivery))
		}
	}
	return parked, nil
}

func (r *SessionRepository) DeleteParked(ctx context.Context, sessionID string, stepID int) error {
	r.cache.Delete(pendingKey(sessionID, stepID))
	return nil
}

func queryKey(sessionID string) string  { return fmt.Sprintf("session:%s:query", sessionID) }
func planKey(sessionID string) string   { return fmt.Sprintf("session:%s:plan", sessionID) }
func cursorKey(sessionID string) string { return fmt.Sprintf("session:%s:current_step", sessionID) }
func paramsKey(sessionID string) string { return fmt.Sprintf("session:%s:params", sessionID) }
func stepChunkKey(sessionID string, stepID int) string {
	return fmt.Sprintf("session:%s:step:%d:chunk", sessionID, stepID)
}
func pendingKey(sessionID string, stepID int) string {
	return fmt.Sprintf("pending:%s:%d", sessionID, stepID)
}
