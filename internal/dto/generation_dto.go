package dto

// GenerateQueryRequest asks the AI collaborator to draft SQL for a question.
type GenerateQueryRequest struct {
	StudentID     string `json:"student_id" validate:"required,max=64"`
	ChallengeSlug string `json:"challenge_slug" validate:"required,max=64"`
	Question      string `json:"question" validate:"required,max=1000"`
	// Quality lets an instructor request a deliberately flawed draft as a
	// debugging exercise. Empty means a correct draft.
	Quality string `json:"quality" validate:"omitempty,oneof=correct partial incorrect"`
}

// GenerateQueryResponse carries the drafted SQL and its validation verdict.
// Valid is false when the draft failed re-validation or the model returned the
// insufficient-info sentinel; such drafts must not be auto-submitted.
type GenerateQueryResponse struct {
	SQL          string `json:"sql"`
	Valid        bool   `json:"valid"`
	Insufficient bool   `json:"insufficient"`
	Reason       string `json:"reason,omitempty"`
	Model        string `json:"model,omitempty"`
}
