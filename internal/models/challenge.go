package models

import (
	"time"

	"gorm.io/datatypes"
)

// Challenge tiers, ordered from easiest to hardest.
const (
	TierEasy   = "easy"
	TierMedium = "medium"
	TierHard   = "hard"
)

// Challenge is a single SQL exercise against the sandboxed inventory
// database. ExpectedRows holds the reference result set as JSON so grading
// never re-runs the reference query on the hot path.
type Challenge struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Slug         string         `gorm:"size:64;uniqueIndex;not null" json:"slug"`
	Tier         string         `gorm:"size:16;not null;index" json:"tier"`
	Title        string         `gorm:"size:255;not null" json:"title"`
	Story        string         `gorm:"type:text" json:"story"`
	Prompt       string         `gorm:"type:text;not null" json:"prompt"`
	ReferenceSQL string         `gorm:"type:text;not null" json:"-"`
	ExpectedRows datatypes.JSON `gorm:"type:json" json:"-"`
	OrderMatters bool           `gorm:"not null;default:false" json:"order_matters"`
	Active       bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
