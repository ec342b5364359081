package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RateLimitCounter tracks the daily run quota for one activated template.
// The counter is provisioned when a template is activated; InstanceID holds
// the activation's id. An absent counter disables limiting entirely.
//
// The window slides rather than resetting on a wall-clock boundary: on reset
// ResetAt is advanced to now, not to the next day boundary.
type RateLimitCounter struct {
	ID           uuid.UUID  `gorm:"type:text;primary_key" json:"id"`
	InstanceID   uuid.UUID  `gorm:"type:text;uniqueIndex;not null" json:"instance_id"`
	MaxPerDay    int        `gorm:"not null;default:100" json:"max_per_day"`
	CurrentCount int        `gorm:"not null;default:0" json:"current_count"`
	ResetAt      *time.Time `json:"reset_at,omitempty"`
}

// BeforeCreate hook to generate UUID
func (r *RateLimitCounter) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
