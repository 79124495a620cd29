package dto

import "ai-lecture-be/internal/model"

type StartLectureRequest struct {
	Query  string              `json:"query" validate:"required,min=3,max=500"`
	Params model.SessionParams `json:"params"`
}

type StartLectureResponse struct {
	SessionID string `json:"session_id"`
}

type SessionStatusResponse struct {
	SessionID   string             `json:"session_id"`
	Query       string             `json:"query"`
	CurrentStep int                `json:"current_step"`
	TotalSteps  int                `json:"total_steps"`
	Plan        *model.PlanSummary `json:"plan,omitempty"`
}

// PlanJobMessage is the payload of a plan-stage job.
type PlanJobMessage struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// GenerateJobMessage is the payload of a generation-stage job. Prefetch
// jobs warm the cache and never emit; emit jobs deliver and schedule the
// next step.
type GenerateJobMessage struct {
	SessionID string     `json:"session_id"`
	Step      model.Step `json:"step"`
	Prefetch  bool       `json:"prefetch"`
}
