package dto

import "github.com/sqlquest/sqlquest-api/internal/models"

// ChallengeResponse is the public view of a challenge. Reference SQL and the
// expected rows never leave the server.
type ChallengeResponse struct {
	Slug         string `json:"slug"`
	Tier         string `json:"tier"`
	Title        string `json:"title"`
	Story        string `json:"story,omitempty"`
	Prompt       string `json:"prompt"`
	OrderMatters bool   `json:"order_matters"`
}

// NewChallengeResponse maps a challenge model to its public view.
func NewChallengeResponse(challenge models.Challenge) ChallengeResponse {
	return ChallengeResponse{
		Slug:         challenge.Slug,
		Tier:         challenge.Tier,
		Title:        challenge.Title,
		Story:        challenge.Story,
		Prompt:       challenge.Prompt,
		OrderMatters: challenge.OrderMatters,
	}
}

// NewChallengeResponseSlice maps a slice of challenges.
func NewChallengeResponseSlice(challenges []models.Challenge) []ChallengeResponse {
	out := make([]ChallengeResponse, 0, len(challenges))
	for _, challenge := range challenges {
		out = append(out, NewChallengeResponse(challenge))
	}
	return out
}
