package dto

import (
	"sort"
	"time"

	"github.com/sqlquest/sqlquest-api/internal/models"
)

// StudentProgressResponse summarizes one student for an instructor dashboard.
type StudentProgressResponse struct {
	StudentID    string  `json:"student_id"`
	Name         string  `json:"name"`
	Tier         string  `json:"tier"`
	Attempts     int64   `json:"attempts"`
	AverageScore float64 `json:"average_score"`
}

// AttemptDetailResponse is the instructor view of one attempt, including the
// abuse signals students never see.
type AttemptDetailResponse struct {
	AttemptID    uint      `json:"attempt_id"`
	StudentID    uint      `json:"student_id"`
	ChallengeID  uint      `json:"challenge_id"`
	SQL          string    `json:"sql"`
	Source       string    `json:"source"`
	Outcome      string    `json:"outcome"`
	Score        float64   `json:"score"`
	Feedback     string    `json:"feedback,omitempty"`
	RowCount     int       `json:"row_count"`
	DurationMs   int64     `json:"duration_ms"`
	AbuseSignals []string  `json:"abuse_signals,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewAttemptDetailResponse maps a stored attempt to its instructor view.
func NewAttemptDetailResponse(attempt models.Attempt) AttemptDetailResponse {
	signals := make([]string, 0, len(attempt.AbuseSignals))
	for signal := range attempt.AbuseSignals {
		signals = append(signals, signal)
	}
	sort.Strings(signals)

	return AttemptDetailResponse{
		AttemptID:    attempt.ID,
		StudentID:    attempt.StudentID,
		ChallengeID:  attempt.ChallengeID,
		SQL:          attempt.RawSQL,
		Source:       attempt.Source,
		Outcome:      attempt.Outcome,
		Score:        attempt.Score,
		Feedback:     attempt.Feedback,
		RowCount:     attempt.RowCount,
		DurationMs:   attempt.DurationMs,
		AbuseSignals: signals,
		CreatedAt:    attempt.CreatedAt,
	}
}

// PipelineEventResponse is one activity-trail entry.
type PipelineEventResponse struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	UserID     string         `json:"user_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewPipelineEventResponse maps a stored pipeline event.
func NewPipelineEventResponse(event models.PipelineEvent) PipelineEventResponse {
	return PipelineEventResponse{
		EventID:    event.EventID,
		EventType:  event.EventType,
		UserID:     event.UserID,
		OccurredAt: event.OccurredAt,
		Payload:    event.Payload,
	}
}

// NewPipelineEventResponseSlice maps stored pipeline events.
func NewPipelineEventResponseSlice(events []models.PipelineEvent) []PipelineEventResponse {
	out := make([]PipelineEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, NewPipelineEventResponse(event))
	}
	return out
}
