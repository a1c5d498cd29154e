// Package events defines the structured events the pipeline emits towards the
// activity logger sink. Delivery is fire-and-forget: a sink failure is logged
// and never fails a student's attempt.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the pipeline event kinds.
type Type string

const (
	TypeAdmissionDenied     Type = "admission_denied"
	TypeValidationRejected  Type = "validation_rejected"
	TypeExecutionCompleted  Type = "execution_completed"
	TypeExecutionFailed     Type = "execution_failed"
	TypeGradingCompleted    Type = "grading_completed"
	TypeAbuseSignal         Type = "abuse_signal"
	TypeDifficultyChanged   Type = "difficulty_changed"
	TypeGenerationCompleted Type = "generation_completed"
	TypeGenerationFailed    Type = "generation_failed"
)

// Event is the wire shape delivered to sinks.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// New builds an event stamped with a fresh id and the current time.
func New(eventType Type, userID string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Sink receives pipeline events for persistence or forwarding.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}
