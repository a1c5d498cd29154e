package models

import (
	"time"

	"gorm.io/datatypes"
)

// PipelineEvent is the durable form of an activity-logger event.
type PipelineEvent struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	EventID    string            `gorm:"size:36;uniqueIndex;not null" json:"event_id"`
	EventType  string            `gorm:"size:64;not null;index" json:"event_type"`
	UserID     string            `gorm:"size:64;index" json:"user_id"`
	OccurredAt time.Time         `gorm:"not null;index" json:"occurred_at"`
	Payload    datatypes.JSONMap `gorm:"type:json" json:"payload"`
	CreatedAt  time.Time         `json:"created_at"`
}
