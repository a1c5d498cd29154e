package dto

import (
	"time"

	"github.com/sqlquest/sqlquest-api/internal/models"
)

// SubmitQueryRequest is the payload for a student SQL submission.
type SubmitQueryRequest struct {
	StudentID     string `json:"student_id" validate:"required,max=64"`
	ChallengeSlug string `json:"challenge_slug" validate:"required,max=64"`
	SQL           string `json:"sql" validate:"required,max=4000"`
	Source        string `json:"source" validate:"omitempty,oneof=manual ai_assisted"`
}

// AttemptResponse is the graded outcome returned to the student.
type AttemptResponse struct {
	AttemptID    uint      `json:"attempt_id"`
	Outcome      string    `json:"outcome"`
	Score        float64   `json:"score"`
	Feedback     string    `json:"feedback,omitempty"`
	Tier         string    `json:"tier"`
	TierChanged  bool      `json:"tier_changed"`
	RowCount     int       `json:"row_count"`
	DurationMs   int64     `json:"duration_ms"`
	AbuseSignals []string  `json:"abuse_signals,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DenialResponse explains a rate-limit rejection.
type DenialResponse struct {
	Window       string `json:"window"`
	RetryAfterMs int64  `json:"retry_after_ms"`
}

// NewAttemptResponse maps a persisted attempt plus post-grading tier state.
func NewAttemptResponse(attempt models.Attempt, tier string, tierChanged bool, signals []string) AttemptResponse {
	return AttemptResponse{
		AttemptID:    attempt.ID,
		Outcome:      attempt.Outcome,
		Score:        attempt.Score,
		Feedback:     attempt.Feedback,
		Tier:         tier,
		TierChanged:  tierChanged,
		RowCount:     attempt.RowCount,
		DurationMs:   attempt.DurationMs,
		AbuseSignals: signals,
		CreatedAt:    attempt.CreatedAt,
	}
}
