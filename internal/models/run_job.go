package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunJobStatus represents the state of a queued run
type RunJobStatus string

const (
	RunJobStatusPending   RunJobStatus = "pending"
	RunJobStatusRunning   RunJobStatus = "running"
	RunJobStatusCompleted RunJobStatus = "completed"
	RunJobStatusFailed    RunJobStatus = "failed"
)

// RunJob is the handle returned to a caller who requested a template run.
// The HTTP layer gates the request (template, quota, credits), persists a
// RunJob and enqueues it; the worker drives the execution lifecycle and the
// caller polls this row for the outcome. Once the worker has created the
// Execution row its id is linked here.
type RunJob struct {
	ID          uuid.UUID         `gorm:"type:text;primary_key" json:"id"`
	TemplateID  uuid.UUID         `gorm:"type:text;index;not null" json:"template_id"`
	UserID      uuid.UUID         `gorm:"type:text;index;not null" json:"user_id"`
	Status      RunJobStatus      `gorm:"not null;default:'pending'" json:"status"`
	Inputs      map[string]string `gorm:"serializer:json" json:"inputs,omitempty"`
	ExecutionID *uuid.UUID        `gorm:"type:text;index" json:"execution_id,omitempty"`
	Error       string            `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	DeletedAt   gorm.DeletedAt    `gorm:"index" json:"-"`
}

// BeforeCreate hook to generate UUID
func (j *RunJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}
