package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/runforge/runforge/internal/models"
	"gorm.io/gorm"
)

type RunHandler struct {
	db *gorm.DB
}

func NewRunHandler(db *gorm.DB) *RunHandler {
	return &RunHandler{db: db}
}

// ListRuns returns the caller's run jobs, newest first
func (h *RunHandler) ListRuns(c *gin.Context) {
	userID := getUserID(c)

	var runs []models.RunJob
	if err := h.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(100).
		Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch runs"})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// GetRun returns one of the caller's run jobs. Clients poll this endpoint
// until the status turns terminal; execution_id is populated once the run
// lifecycle has produced an execution record.
func (h *RunHandler) GetRun(c *gin.Context) {
	userID := getUserID(c)

	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var run models.RunJob
	if err := h.db.Where("id = ? AND user_id = ?", id, userID).First(&run).Error; err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Run not found"})
		return
	}

	c.JSON(http.StatusOK, run)
}
