package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Instance binds one user and one template to a concrete workflow in the
// external engine. A new instance is created for every run invocation;
// instances are never reused across runs and never mutated after creation
// except for deactivation.
type Instance struct {
	ID                 uuid.UUID `gorm:"type:text;primary_key" json:"id"`
	UserID             uuid.UUID `gorm:"type:text;index;not null" json:"user_id"`
	TemplateID         uuid.UUID `gorm:"type:text;index;not null" json:"template_id"`
	ExternalWorkflowID string    `gorm:"not null" json:"external_workflow_id"`
	IsActive           bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
}

// BeforeCreate hook to generate UUID
func (i *Instance) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
