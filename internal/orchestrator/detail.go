package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/graph"
	"github.com/runforge/runforge/internal/models"
	"gorm.io/gorm"
)

// WorkflowMeta summarizes the workflow an execution belongs to.
type WorkflowMeta struct {
	ID          string     `json:"id,omitempty"`
	Name        string     `json:"name"`
	TriggerType string     `json:"trigger_type"`
	TotalRuns   int64      `json:"total_runs"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
}

// Detail is the execution detail view: the local run record, workflow
// metadata and the reconstructed graph.
type Detail struct {
	Execution models.Execution `json:"execution"`
	Workflow  WorkflowMeta     `json:"workflow"`
	Graph     graph.Graph      `json:"graph"`
}

// ExecutionDetail assembles the detail view for one of the caller's
// executions. Local rows are authoritative for the run record; topology and
// runtime status come from the engine and degrade gracefully — an engine
// outage yields the record with an empty graph instead of an error.
//
// A missing external execution id is backfilled here from the engine's
// list (write-once), the same late binding the run path's discovery does.
func (s *Service) ExecutionDetail(ctx context.Context, executionID, userID uuid.UUID) (*Detail, error) {
	var exec models.Execution
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", executionID, userID).
		First(&exec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}

	detail := &Detail{
		Execution: exec,
		Workflow:  WorkflowMeta{Name: "Unknown Workflow", TriggerType: "manual"},
		Graph:     graph.Graph{Nodes: []graph.Node{}, Edges: []graph.Edge{}},
	}

	var instance models.Instance
	if err := s.db.WithContext(ctx).First(&instance, "id = ?", exec.InstanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return detail, nil
		}
		return nil, err
	}
	detail.Workflow.ID = instance.ExternalWorkflowID

	var tmpl models.Template
	if err := s.db.WithContext(ctx).First(&tmpl, "id = ?", instance.TemplateID).Error; err == nil {
		detail.Workflow.Name = tmpl.Name
	}

	if err := s.db.WithContext(ctx).Model(&models.Execution{}).
		Where("instance_id = ?", instance.ID).
		Count(&detail.Workflow.TotalRuns).Error; err != nil {
		slog.Warn("Failed to count instance executions", "instance_id", instance.ID, "error", err)
	}

	var previous models.Execution
	err = s.db.WithContext(ctx).
		Where("instance_id = ? AND id <> ?", instance.ID, exec.ID).
		Order("started_at DESC").
		First(&previous).Error
	if err == nil {
		detail.Workflow.LastRunAt = &previous.StartedAt
	}

	if instance.ExternalWorkflowID != "" {
		s.mergeEngineView(ctx, detail, &exec, instance.ExternalWorkflowID)
	}
	return detail, nil
}

// mergeEngineView pulls topology and runtime data from the engine into the
// detail. All engine failures are logged and absorbed.
func (s *Service) mergeEngineView(ctx context.Context, detail *Detail, exec *models.Execution, externalWorkflowID string) {
	topology, err := s.engine.GetWorkflow(ctx, externalWorkflowID)
	if err != nil {
		slog.Warn("Failed to fetch workflow topology",
			"execution_id", exec.ID, "external_workflow_id", externalWorkflowID, "error", err)
		return
	}
	detail.Workflow.TriggerType = triggerType(topology)

	externalExecID := exec.ExternalExecutionID
	if list, err := s.engine.ListExecutions(ctx, externalWorkflowID); err == nil {
		// Live count from the engine supersedes the local one.
		detail.Workflow.TotalRuns = int64(len(list.Data))

		if externalExecID == "" && len(list.Data) > 0 {
			externalExecID = list.Data[0].ID.String()
			if err := s.db.WithContext(ctx).Model(&models.Execution{}).
				Where("id = ? AND (external_execution_id IS NULL OR external_execution_id = '')", exec.ID).
				Update("external_execution_id", externalExecID).Error; err != nil {
				slog.Error("Failed to backfill external execution id",
					"execution_id", exec.ID, "error", err)
			}
			detail.Execution.ExternalExecutionID = externalExecID
		}
	} else {
		slog.Warn("Failed to list engine executions",
			"external_workflow_id", externalWorkflowID, "error", err)
	}

	var runtime map[string]interface{}
	if externalExecID != "" {
		runtime, err = s.engine.GetExecution(ctx, externalExecID)
		if err != nil {
			slog.Warn("Failed to fetch engine execution data",
				"external_execution_id", externalExecID, "error", err)
			runtime = nil
		}
	}

	detail.Graph = graph.Build(topology, runtime)
}

// triggerType classifies the workflow by its first node's type.
func triggerType(topology map[string]interface{}) string {
	nodes, _ := topology["nodes"].([]interface{})
	if len(nodes) == 0 {
		return "manual"
	}
	first, _ := nodes[0].(map[string]interface{})
	nodeType, _ := first["type"].(string)
	lower := strings.ToLower(nodeType)
	switch {
	case strings.Contains(lower, "schedule"):
		return "schedule"
	case strings.Contains(lower, "webhook"):
		return "webhook"
	default:
		return "manual"
	}
}
