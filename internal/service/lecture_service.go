package service

import (
	"context"
	"encoding/json"
	"fmt"

	"ai-lecture-be/internal/config"
	"ai-lecture-be/internal/dto"
	"ai-lecture-be/internal/pkg/logger"
	"ai-lecture-be/internal/repository/contract"

	"github.com/google/uuid"
)

type ILectureService interface {
	Start(ctx context.Context, req *dto.StartLectureRequest) (*dto.StartLectureResponse, error)
	Status(ctx context.Context, sessionID string) (*dto.SessionStatusResponse, error)
}

type lectureService struct {
	cfg    config.PipelineConfig
	repo   contract.SessionRepository
	queue  JobQueue
	logger logger.ILogger
}

func NewLectureService(cfg config.PipelineConfig, repo contract.SessionRepository, queue JobQueue, log logger.ILogger) ILectureService {
	return &lectureService{cfg: cfg, repo: repo, queue: queue, logger: log}
}

// Start creates a session and enqueues its plan job. The heavy lifting all
// happens asynchronously; clients follow along over the websocket group.
func (s *lectureService) Start(ctx context.Context, req *dto.StartLectureRequest) (*dto.StartLectureResponse, error) {
	sessionID := uuid.NewString()

	if err := s.repo.SaveQuery(ctx, sessionID, req.Query); err != nil {
		return nil, fmt.Errorf("save query: %w", err)
	}
	if err := s.repo.SaveParams(ctx, sessionID, req.Params); err != nil {
		return nil, fmt.Errorf("save params: %w", err)
	}

	payload, err := json.Marshal(dto.PlanJobMessage{SessionID: sessionID, Query: req.Query})
	if err != nil {
		return nil, fmt.Errorf("marshal plan job: %w", err)
	}
	if err := s.queue.Publish(ctx, s.cfg.PlanSubject, payload); err != nil {
		return nil, fmt.Errorf("enqueue plan job: %w", err)
	}

	s.logger.Info("Lecture", "Session started", map[string]interface{}{
		"session": sessionID, "query": req.Query,
	})
	return &dto.StartLectureResponse{SessionID: sessionID}, nil
}

func (s *lectureService) Status(ctx context.Context, sessionID string) (*dto.SessionStatusResponse, error) {
	query, err := s.repo.GetQuery(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("unknown session %s", sessionID)
	}

	resp := &dto.SessionStatusResponse{
		SessionID: sessionID,
		Query:     query,
	}

	if plan, err := s.repo.GetPlan(ctx, sessionID); err == nil && plan != nil {
		summary := plan.Summary()
		resp.Plan = &summary
		resp.TotalSteps = len(plan.Steps)
	}
	if cursor, err := s.repo.GetCursor(ctx, sessionID); err == nil {
		resp.CurrentStep = cursor
	}

	return resp, nil
}
