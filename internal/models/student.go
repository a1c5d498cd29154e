package models

import "time"

// Student roles.
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
)

// Student is a registered learner (or instructor) in the practice system.
type Student struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ExternalID   string    `gorm:"size:64;uniqueIndex;not null" json:"external_id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role         string    `gorm:"size:32;not null;default:student" json:"role"`
	InstructorID *uint     `json:"instructor_id"`
	Tier         string    `gorm:"size:16;not null;default:easy" json:"tier"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Attempts     []Attempt `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsInstructor reports whether the student holds the instructor role.
func (s Student) IsInstructor() bool {
	return s.Role == RoleInstructor
}
