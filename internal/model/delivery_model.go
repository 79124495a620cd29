package model

import "time"

// RenderedPayload is the body of a `rendered` event. Clients must treat a
// repeated step_id as an idempotent replacement, not an append.
type RenderedPayload struct {
	Chunk           *Chunk      `json:"chunk"`
	Step            Step        `json:"step"`
	Plan            PlanSummary `json:"plan"`
	DeliveryAttempt int         `json:"delivery_attempt,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

// ConfirmationPayload is the body of a `delivery_confirmed` event.
type ConfirmationPayload struct {
	StepID    int       `json:"step_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ParkedDelivery is an undeliverable chunk persisted to the shared store
// under pending:{session}:{stepId}, replayed when the client reconnects.
type ParkedDelivery struct {
	SessionID string      `json:"session_id"`
	StepID    int         `json:"step_id"`
	Chunk     *Chunk      `json:"chunk"`
	Step      Step        `json:"step"`
	Plan      PlanSummary `json:"plan"`
	ParkedAt  time.Time   `json:"parked_at"`
}
