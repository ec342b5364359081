package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Template represents an admin-curated automation definition sold on the
// marketplace. DefinitionJSON is the serialized workflow document containing
// placeholder tokens; it is read-only to the execution path, which always
// works on a copy.
type Template struct {
	ID          uuid.UUID `gorm:"type:text;primary_key" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	// ID of the template's copy in the external engine, set by the first
	// successful admin test run.
	ExternalWorkflowID string         `json:"external_workflow_id,omitempty"`
	DefinitionJSON     string         `gorm:"type:text" json:"-"`
	InputSchema        string         `gorm:"type:text" json:"input_schema"`
	IsFree             bool           `gorm:"not null;default:false" json:"is_free"`
	PricePerRun        int64          `gorm:"not null;default:0" json:"price_per_run"`
	MaxRunsPerDay      int            `gorm:"not null;default:100" json:"max_runs_per_day"`
	IsActive           bool           `gorm:"not null;default:false" json:"is_active"`
	CreatedBy          uuid.UUID      `gorm:"type:text;index" json:"created_by"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook to generate UUID
func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
