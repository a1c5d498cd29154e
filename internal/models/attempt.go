package models

import (
	"time"

	"gorm.io/datatypes"
)

// Attempt outcomes.
const (
	AttemptOutcomeExactMatch   = "exact_match"
	AttemptOutcomePartialMatch = "partial_match"
	AttemptOutcomeIncorrect    = "incorrect"
	AttemptOutcomeNoResults    = "no_results"
	AttemptOutcomeRejected     = "rejected"
	AttemptOutcomeFailed       = "failed"
	AttemptOutcomeTimeout      = "timeout"
	AttemptOutcomeError        = "error"
)

// Attempt sources.
const (
	AttemptSourceManual     = "manual"
	AttemptSourceAIAssisted = "ai_assisted"
)

// Attempt records one graded (or rejected) submission by a student.
type Attempt struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	StudentID    uint              `gorm:"not null;index" json:"student_id"`
	ChallengeID  uint              `gorm:"not null;index" json:"challenge_id"`
	RawSQL       string            `gorm:"type:text;not null" json:"raw_sql"`
	CanonicalSQL string            `gorm:"type:text" json:"canonical_sql"`
	Fingerprint  string            `gorm:"size:64;index" json:"fingerprint"`
	Source       string            `gorm:"size:16;not null;default:manual" json:"source"`
	Outcome      string            `gorm:"size:32;not null" json:"outcome"`
	Score        float64           `gorm:"not null;default:0" json:"score"`
	Feedback     string            `gorm:"type:text" json:"feedback"`
	RowCount     int               `gorm:"default:0" json:"row_count"`
	DurationMs   int64             `gorm:"default:0" json:"duration_ms"`
	AbuseSignals datatypes.JSONMap `gorm:"type:json" json:"abuse_signals,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	Student      Student           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Challenge    Challenge         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// Counted reports whether the attempt feeds the difficulty window. Only
// attempts that were actually graded do; rejections, execution failures,
// timeouts and internal grading errors stay out of the window.
func (a Attempt) Counted() bool {
	switch a.Outcome {
	case AttemptOutcomeRejected, AttemptOutcomeFailed, AttemptOutcomeTimeout, AttemptOutcomeError:
		return false
	}
	return true
}
