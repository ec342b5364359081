package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExecutionStatus represents the state of an execution
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed  ExecutionStatus = "FAILED"
)

// Execution is this system's own run record, tracked independently of the
// external engine's execution record. It is created when the run enters
// RUNNING (never before) and mutated only by the lifecycle driver.
// ExternalExecutionID is write-once-if-found: discovery fills it and it is
// never overwritten afterward.
type Execution struct {
	ID                  uuid.UUID       `gorm:"type:text;primary_key" json:"id"`
	InstanceID          uuid.UUID       `gorm:"type:text;index;not null" json:"instance_id"`
	UserID              uuid.UUID       `gorm:"type:text;index;not null" json:"user_id"`
	Status              ExecutionStatus `gorm:"not null;default:'RUNNING'" json:"status"`
	CreditsCharged      int64           `gorm:"not null;default:0" json:"credits_charged"`
	StartedAt           time.Time       `gorm:"not null" json:"started_at"`
	EndedAt             *time.Time      `json:"ended_at,omitempty"`
	ErrorMessage        string          `json:"error_message,omitempty"`
	ExternalExecutionID string          `json:"external_execution_id,omitempty"`
}

// BeforeCreate hook to generate UUID
func (e *Execution) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	return nil
}

// Terminal reports whether the execution has reached a final status.
func (e *Execution) Terminal() bool {
	return e.Status == ExecutionStatusSuccess || e.Status == ExecutionStatusFailed
}
