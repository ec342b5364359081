// Package orchestrator drives the execution lifecycle: it gates run
// requests, instantiates templates, pushes the result through the external
// engine, reconciles the engine's execution record with our own, and
// rebuilds the detail-view graph.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/engine"
	"github.com/runforge/runforge/internal/ledger"
	"github.com/runforge/runforge/internal/models"
	"github.com/runforge/runforge/internal/queue"
	"github.com/runforge/runforge/internal/ratelimit"
	"github.com/runforge/runforge/internal/retry"
	"github.com/runforge/runforge/internal/template"
	"gorm.io/gorm"
)

// Service is the execution lifecycle driver. All collaborators are injected;
// there is no ambient engine client.
type Service struct {
	db           *gorm.DB
	engine       *engine.Client
	instantiator *template.Instantiator
	ledger       *ledger.Service
	limiter      *ratelimit.Limiter
	queue        queue.Queue
	discovery    retry.Config
}

// New creates the orchestrator service.
func New(db *gorm.DB, eng *engine.Client, led *ledger.Service, limiter *ratelimit.Limiter, q queue.Queue, discovery retry.Config) *Service {
	return &Service{
		db:           db,
		engine:       eng,
		instantiator: template.NewInstantiator(eng),
		ledger:       led,
		limiter:      limiter,
		queue:        q,
		discovery:    discovery,
	}
}

// Submit gates a run request and enqueues it. Everything here happens on
// the request path so rejections reach the caller with no persisted trace:
// an inactive template, an exhausted quota (BLOCKED) or an insufficient
// balance all abort before any row is written. On success the persisted
// RunJob is the caller's polling handle.
//
// A paid template is charged here, at submission: a run attempt is charged,
// not a successful run, and the driver never refunds (see DESIGN.md).
func (s *Service) Submit(ctx context.Context, templateID, userID uuid.UUID, inputs map[string]string) (*models.RunJob, error) {
	var tmpl models.Template
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", templateID, true).
		First(&tmpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	if err := s.limiter.Reserve(ctx, tmpl.ID); err != nil {
		return nil, err
	}

	job := &models.RunJob{
		ID:         uuid.New(),
		TemplateID: tmpl.ID,
		UserID:     userID,
		Status:     models.RunJobStatusPending,
		Inputs:     inputs,
	}

	if !tmpl.IsFree {
		if _, err := s.ledger.DeductForRun(ctx, userID, tmpl.PricePerRun, job.ID.String()); err != nil {
			s.releaseSlot(ctx, tmpl.ID)
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		s.releaseSlot(ctx, tmpl.ID)
		return nil, fmt.Errorf("failed to persist run job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.releaseSlot(ctx, tmpl.ID)
		return nil, fmt.Errorf("failed to enqueue run job: %w", err)
	}

	slog.Info("Run submitted",
		"job_id", job.ID,
		"template_id", tmpl.ID,
		"user_id", userID,
		"price", tmpl.PricePerRun,
		"free", tmpl.IsFree)
	return job, nil
}

// releaseSlot returns a reserved quota slot after a rejected submission. A
// rejection must leave the counter where Reserve found it, or a user who
// cannot pay could exhaust a template's quota for everyone.
func (s *Service) releaseSlot(ctx context.Context, templateID uuid.UUID) {
	if err := s.limiter.Release(ctx, templateID); err != nil {
		slog.Error("Failed to release quota slot", "template_id", templateID, "error", err)
	}
}

// Execute drives a dequeued run through the engine. The worker owns the
// RunJob status; Execute owns the Instance and Execution rows.
//
// Errors raised before the Execution row exists propagate with no persisted
// execution trace (the charge from Submit stands). Once the row exists any
// failure marks it FAILED with the error message and still propagates.
func (s *Service) Execute(ctx context.Context, job *models.RunJob) error {
	var tmpl models.Template
	if err := s.db.WithContext(ctx).First(&tmpl, "id = ?", job.TemplateID).Error; err != nil {
		return fmt.Errorf("template vanished after submit: %w", err)
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", job.UserID).Error; err != nil {
		return fmt.Errorf("user vanished after submit: %w", err)
	}

	doc, provisioned, err := s.instantiator.Instantiate(ctx, &tmpl, job.Inputs, "USER_CRED_"+user.Email)
	if err != nil {
		return err
	}
	s.recordCredentials(ctx, user.ID, provisioned)

	named, err := doc.Named(fmt.Sprintf("USER_RUN: %s (%s)", tmpl.Name, user.Email))
	if err != nil {
		return fmt.Errorf("template document is not valid JSON: %w", err)
	}

	externalID, err := s.engine.CreateWorkflow(ctx, named)
	if err != nil {
		// No Execution row exists yet; the deduction stands.
		return err
	}

	instance := models.Instance{
		UserID:             user.ID,
		TemplateID:         tmpl.ID,
		ExternalWorkflowID: externalID,
		IsActive:           true,
	}
	if err := s.db.WithContext(ctx).Create(&instance).Error; err != nil {
		return fmt.Errorf("failed to persist instance: %w", err)
	}

	charged := tmpl.PricePerRun
	if tmpl.IsFree {
		charged = 0
	}
	exec := models.Execution{
		InstanceID:     instance.ID,
		UserID:         user.ID,
		Status:         models.ExecutionStatusRunning,
		CreditsCharged: charged,
	}
	if err := s.db.WithContext(ctx).Create(&exec).Error; err != nil {
		return fmt.Errorf("failed to persist execution: %w", err)
	}
	s.linkExecution(ctx, job, exec.ID)

	if err := s.runActivated(ctx, &exec, externalID); err != nil {
		s.finishExecution(ctx, &exec, models.ExecutionStatusFailed, err.Error())
		return err
	}

	s.finishExecution(ctx, &exec, models.ExecutionStatusSuccess, "")
	slog.Info("Run completed",
		"job_id", job.ID,
		"execution_id", exec.ID,
		"external_workflow_id", externalID,
		"external_execution_id", exec.ExternalExecutionID)
	return nil
}

// runActivated activates the workflow and discovers the engine's execution
// id. Activation failure degrades into discovery rather than aborting;
// discovery exhaustion is not a failure either (the run still ends SUCCESS
// with no external id — preserved behavior, see DESIGN.md).
func (s *Service) runActivated(ctx context.Context, exec *models.Execution, externalWorkflowID string) error {
	if ok := s.engine.ActivateWorkflow(ctx, externalWorkflowID); !ok {
		slog.Warn("Activation failed, continuing to discovery",
			"execution_id", exec.ID, "external_workflow_id", externalWorkflowID)
	}

	externalExecID, err := s.discoverExecutionID(ctx, exec.ExternalExecutionID, externalWorkflowID)
	if err != nil {
		return err
	}
	if externalExecID == "" {
		slog.Warn("Discovery exhausted without finding an execution id",
			"execution_id", exec.ID, "external_workflow_id", externalWorkflowID)
		return nil
	}

	exec.ExternalExecutionID = externalExecID
	return s.db.WithContext(ctx).Model(&models.Execution{}).
		Where("id = ?", exec.ID).
		Update("external_execution_id", externalExecID).Error
}

// discoverExecutionID polls the engine for the execution id of a
// just-activated workflow. The engine lists most-recent-first, so the first
// element is the one this run produced. Individual poll failures are
// swallowed; only caller cancellation stops the loop early without a
// result. Idempotent: a known id short-circuits the poll.
func (s *Service) discoverExecutionID(ctx context.Context, known, externalWorkflowID string) (string, error) {
	if known != "" {
		return known, nil
	}

	id, found, err := retry.Poll(ctx, s.discovery, func(ctx context.Context) (string, bool, error) {
		list, err := s.engine.ListExecutions(ctx, externalWorkflowID)
		if err != nil {
			return "", false, err
		}
		if len(list.Data) == 0 {
			return "", false, nil
		}
		return list.Data[0].ID.String(), true, nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}
	return id, nil
}

// finishExecution stamps the terminal status. The execution row has a
// single writer (this invocation), so a plain update suffices.
func (s *Service) finishExecution(ctx context.Context, exec *models.Execution, status models.ExecutionStatus, errorMessage string) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":   status,
		"ended_at": now,
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}
	if err := s.db.WithContext(ctx).Model(&models.Execution{}).
		Where("id = ?", exec.ID).
		Updates(updates).Error; err != nil {
		slog.Error("Failed to finalize execution", "execution_id", exec.ID, "error", err)
	}
	exec.Status = status
	exec.EndedAt = &now
	exec.ErrorMessage = errorMessage
}

// linkExecution points the polling handle at the execution row.
func (s *Service) linkExecution(ctx context.Context, job *models.RunJob, execID uuid.UUID) {
	job.ExecutionID = &execID
	if err := s.db.WithContext(ctx).Model(&models.RunJob{}).
		Where("id = ?", job.ID).
		Update("execution_id", execID).Error; err != nil {
		slog.Error("Failed to link execution to run job", "job_id", job.ID, "error", err)
	}
}

// recordCredentials persists references to engine credentials provisioned
// during instantiation. Best effort: a failed insert does not abort the run.
func (s *Service) recordCredentials(ctx context.Context, userID uuid.UUID, provisioned []template.ProvisionedCredential) {
	for _, cred := range provisioned {
		row := models.UserCredential{
			UserID:               userID,
			Name:                 cred.Name,
			CredentialType:       cred.Type,
			ExternalCredentialID: cred.ExternalID,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			slog.Error("Failed to record provisioned credential",
				"user_id", userID, "name", cred.Name, "error", err)
		}
	}
}
