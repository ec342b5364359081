package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/runforge/runforge/internal/models"
	"github.com/runforge/runforge/internal/orchestrator"
	"gorm.io/gorm"
)

type ExecutionHandler struct {
	db           *gorm.DB
	orchestrator *orchestrator.Service
}

func NewExecutionHandler(db *gorm.DB, orch *orchestrator.Service) *ExecutionHandler {
	return &ExecutionHandler{db: db, orchestrator: orch}
}

// ListExecutions returns the caller's executions, newest first
func (h *ExecutionHandler) ListExecutions(c *gin.Context) {
	userID := getUserID(c)

	var executions []models.Execution
	if err := h.db.Where("user_id = ?", userID).
		Order("started_at DESC").
		Limit(100).
		Find(&executions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch executions"})
		return
	}

	c.JSON(http.StatusOK, executions)
}

// GetExecutionDetails returns the execution record together with workflow
// metadata and the node graph reconstructed from the engine
func (h *ExecutionHandler) GetExecutionDetails(c *gin.Context) {
	userID := getUserID(c)

	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.orchestrator.ExecutionDetail(c.Request.Context(), id, userID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Execution not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch execution details"})
		return
	}

	c.JSON(http.StatusOK, detail)
}
