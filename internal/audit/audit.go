package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/models"
	"gorm.io/gorm"
)

// LogAction records an audit log entry
func LogAction(db *gorm.DB, userID uuid.UUID, action, resource string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	log := models.AuditLog{
		UserID:      userID,
		Action:      action,
		Resource:    resource,
		DetailsJSON: string(detailsJSON),
		Timestamp:   time.Now(),
	}

	return db.Create(&log).Error
}

// Audit actions constants
const (
	ActionSignup             = "signup"
	ActionLogin              = "login"
	ActionLoginFailed        = "login_failed"
	ActionCreateTemplate     = "create_template"
	ActionUpdateTemplate     = "update_template"
	ActionActivateTemplate   = "activate_template"
	ActionDeactivateTemplate = "deactivate_template"
	ActionTestTemplate       = "test_template"
	ActionGrantCredits       = "grant_credits"
	ActionRunTemplate        = "run_template"
)
