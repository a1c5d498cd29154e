// Package ai wraps the LLM that drafts SQL queries for students. The model is
// an untrusted collaborator: everything it returns is post-processed here and
// then re-validated by the same pipeline that checks hand-written queries.
package ai

import (
	"context"
	"errors"
)

// SentinelInsufficient is returned by the model (or forced by post-processing)
// when no safe SELECT can be produced for the question.
const SentinelInsufficient = "SELECT 'INSUFFICIENT_INFO';"

// ErrUnavailable indicates the generation backend cannot be reached.
var ErrUnavailable = errors.New("ai: generator unavailable")

// Quality levels steer how close to correct the drafted SQL should be.
// Partial and incorrect drafts are used as training wheels: the student gets
// a starting point that still needs their own debugging.
const (
	QualityCorrect   = "correct"
	QualityPartial   = "partial"
	QualityIncorrect = "incorrect"
)

// ValidQuality reports whether the given quality level is recognised.
func ValidQuality(quality string) bool {
	switch quality {
	case QualityCorrect, QualityPartial, QualityIncorrect:
		return true
	}
	return false
}

// GenerationInput carries a natural-language question plus the published
// schema the query must stay inside.
type GenerationInput struct {
	Question       string
	SchemaMarkdown string
	Tier           string
	// Quality selects the draft fidelity; empty means QualityCorrect.
	Quality string
}

// GenerationResult is the post-processed output of one generation call.
type GenerationResult struct {
	SQL          string
	Insufficient bool
	Model        string
}

// Generator describes an AI model capable of drafting SELECT statements.
type Generator interface {
	GenerateSQL(ctx context.Context, input GenerationInput) (GenerationResult, error)
}
