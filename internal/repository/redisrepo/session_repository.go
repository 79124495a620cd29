package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ai-lecture-be/internal/model"
	"ai-lecture-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const sessionTTL = 24 * time.Hour

// SessionRepository keeps session state in Redis under session:{id}:* keys
// plus parked deliveries under pending:{session}:{stepId}.
type SessionRepository struct {
	rdb     *redis.Client
	parkTTL time.Duration
}

var _ contract.SessionRepository = &SessionRepository{}

func NewSessionRepository(rdb *redis.Client, parkTTL time.Duration) *SessionRepository {
	if parkTTL <= 0 {
		parkTTL = 6 * time.Hour
	}
	return &SessionRepository{rdb: rdb, parkTTL: parkTTL}
}

func queryKey(sessionID string) string  { return "session:" + sessionID + ":query" }
func planKey(sessionID string) string   { return "session:" + sessionID + ":plan" }
func cursorKey(sessionID string) string { return "session:" + sessionID + ":current_step" }
func paramsKey(sessionID string) string { return "session:" + sessionID + ":params" }

func stepChunkKey(sessionID string, stepID int) string {
	return fmt.Sprintf("session:%s:step:%d:chunk", sessionID, stepID)
}

func pendingKey(sessionID string, stepID int) string {
	return fmt.Sprintf("pending:%s:%d", sessionID, stepID)
}

func (r *SessionRepository) SaveQuery(ctx context.Context, sessionID, query string) error {
	return r.rdb.Set(ctx, queryKey(sessionID), query, sessionTTL).Err()
}

func (r *SessionRepository) GetQuery(ctx context.Context, sessionID string) (string, error) {
	query, err := r.rdb.Get(ctx, queryKey(sessionID)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("session %s: %w", sessionID, contract.ErrSessionNotFound)
	}
	return query, err
}

func (r *SessionRepository) SavePlan(ctx context.Context, sessionID string, plan *model.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if err := r.rdb.Set(ctx, planKey(sessionID), data, sessionTTL).Err(); err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return r.SetCursor(ctx, sessionID, 0)
}

func (r *SessionRepository) GetPlan(ctx context.Context, sessionID string) (*model.Plan, error) {
	data, err := r.rdb.Get(ctx, planKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	var plan model.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return &plan, nil
}

func (r *SessionRepository) DeletePlan(ctx context.Context, sessionID string) error {
	return r.rdb.Del(ctx, planKey(sessionID)).Err()
}

func (r *SessionRepository) SetCursor(ctx context.Context, sessionID string, step int) error {
	return r.rdb.Set(ctx, cursorKey(sessionID), step, sessionTTL).Err()
}

func (r *SessionRepository) GetCursor(ctx context.Context, sessionID string) (int, error) {
	raw, err := r.rdb.Get(ctx, cursorKey(sessionID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

func (r *SessionRepository) SaveParams(ctx context.Context, sessionID string, params model.SessionParams) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	return r.rdb.Set(ctx, paramsKey(sessionID), data, sessionTTL).Err()
}

func (r *SessionRepository) GetParams(ctx context.Context, sessionID string) (model.SessionParams, error) {
	var params model.SessionParams
	data, err := r.rdb.Get(ctx, paramsKey(sessionID)).Bytes()
	if err == redis.Nil {
		return params, nil
	}
	if err != nil {
		return params, err
	}
	err = json.Unmarshal(data, &params)
	return params, err
}

func (r *SessionRepository) SaveStepChunk(ctx context.Context, sessionID string, stepID int, chunk *model.Chunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	return r.rdb.Set(ctx, stepChunkKey(sessionID, stepID), data, sessionTTL).Err()
}

func (r *SessionRepository) ParkDelivery(ctx context.Context, parked *model.ParkedDelivery) error {
	data, err := json.Marshal(parked)
	if err != nil {
		return fmt.Errorf("marshal parked delivery: %w", err)
	}
	return r.rdb.Set(ctx, pendingKey(parked.SessionID, parked.StepID), data, r.parkTTL).Err()
}

func (r *SessionRepository) ListParked(ctx context.Context, sessionID string) ([]*model.ParkedDelivery, error) {
	var parked []*model.ParkedDelivery

	iter := r.rdb.Scan(ctx, 0, "pending:"+sessionID+":*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue // expired between SCAN and GET
		}
		var p model.ParkedDelivery
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		parked = append(parked, &p)
	}
	if err := iter.Err(); err != nil {
		return parked, fmt.Errorf("scan parked deliveries: %w", err)
	}
	return parked, nil
}

func (r *SessionRepository) DeleteParked(ctx context.Context, sessionID string, stepID int) error {
	return r.rdb.Del(ctx, pendingKey(sessionID, stepID)).Err()
}
