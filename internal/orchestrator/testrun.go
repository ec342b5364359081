package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/models"
	"gorm.io/gorm"
)

// TestResult is the outcome of an admin dry run.
type TestResult struct {
	Success             bool   `json:"success"`
	ExternalWorkflowID  string `json:"external_workflow_id,omitempty"`
	ExternalExecutionID string `json:"external_execution_id,omitempty"`
	ViewURL             string `json:"view_url,omitempty"`
	Status              string `json:"status,omitempty"`
	Error               string `json:"error,omitempty"`
}

// TestRun validates a template before publication by replaying the run
// sequence with relaxed persistence: same instantiation, engine create,
// activation and discovery, but no Instance or Execution rows and no
// charge. The created workflow's id is recorded on the template (activation
// requires a tested template) and a browser-viewable engine link is
// surfaced. Engine failures come back inside the result rather than as an
// error.
func (s *Service) TestRun(ctx context.Context, templateID uuid.UUID, inputs map[string]string) (*TestResult, error) {
	var tmpl models.Template
	if err := s.db.WithContext(ctx).First(&tmpl, "id = ?", templateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	doc, _, err := s.instantiator.Instantiate(ctx, &tmpl, inputs, "TEMP_CRED_"+tmpl.Name)
	if err != nil {
		return nil, err
	}

	named, err := doc.Named("TEST_RUN: " + tmpl.Name)
	if err != nil {
		return &TestResult{Success: false, Error: "template document is not valid JSON: " + err.Error()}, nil
	}

	externalID, err := s.engine.CreateWorkflow(ctx, named)
	if err != nil {
		return &TestResult{Success: false, Error: "engine test run failed: " + err.Error()}, nil
	}

	// First successful test links the engine copy to the template.
	if err := s.db.WithContext(ctx).Model(&models.Template{}).
		Where("id = ?", tmpl.ID).
		Update("external_workflow_id", externalID).Error; err != nil {
		slog.Error("Failed to record external workflow id on template",
			"template_id", tmpl.ID, "error", err)
	}

	status := "activated and ready to run on schedule"
	if ok := s.engine.ActivateWorkflow(ctx, externalID); !ok {
		status = "created but not activated (might need manual activation)"
	}

	externalExecID, err := s.discoverExecutionID(ctx, "", externalID)
	if err != nil {
		return nil, err
	}

	slog.Info("Template test run finished",
		"template_id", tmpl.ID,
		"external_workflow_id", externalID,
		"external_execution_id", externalExecID,
		"status", status)

	return &TestResult{
		Success:             true,
		ExternalWorkflowID:  externalID,
		ExternalExecutionID: externalExecID,
		ViewURL:             s.engine.ViewURL(externalID),
		Status:              status,
	}, nil
}
