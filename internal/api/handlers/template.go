package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/runforge/runforge/internal/audit"
	"github.com/runforge/runforge/internal/ledger"
	"github.com/runforge/runforge/internal/models"
	"github.com/runforge/runforge/internal/orchestrator"
	"github.com/runforge/runforge/internal/ratelimit"
	"github.com/runforge/runforge/internal/template"
	"gorm.io/gorm"
)

type TemplateHandler struct {
	db           *gorm.DB
	orchestrator *orchestrator.Service
}

func NewTemplateHandler(db *gorm.DB, orch *orchestrator.Service) *TemplateHandler {
	return &TemplateHandler{db: db, orchestrator: orch}
}

// ListTemplates returns the active marketplace catalog. Inactive templates
// are visible only through the admin surface.
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	query := h.db.Where("is_active = ?", true)
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var templates []models.Template
	if err := query.Order("created_at DESC").Find(&templates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch templates"})
		return
	}

	c.JSON(http.StatusOK, templates)
}

// GetTemplate returns one active template with its parsed input schema
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var tmpl models.Template
	if err := h.db.Where("id = ? AND is_active = ?", id, true).First(&tmpl).Error; err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Template not found"})
		return
	}

	fields, err := template.ParseSchema(tmpl.InputSchema)
	if err != nil {
		fields = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"template":     tmpl,
		"input_fields": fields,
	})
}

// RunTemplateRequest carries the user's input values keyed by schema label
type RunTemplateRequest struct {
	Inputs map[string]string `json:"inputs"`
}

// RunTemplate gates and enqueues a run of a template. Gating (existence,
// daily quota, credits) happens synchronously so the caller gets a definite
// rejection; the run itself is asynchronous and polled via the returned id.
func (h *TemplateHandler) RunTemplate(c *gin.Context) {
	userID := getUserID(c)

	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req RunTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	job, err := h.orchestrator.Submit(c.Request.Context(), id, userID, req.Inputs)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrTemplateNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Template not found"})
		case errors.Is(err, ratelimit.ErrLimitExceeded):
			c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "Daily run limit reached for this template"})
		case errors.Is(err, ledger.ErrInsufficientCredits):
			c.JSON(http.StatusPaymentRequired, ErrorResponse{Error: "Insufficient credits"})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to start run"})
		}
		return
	}

	audit.LogAction(h.db, userID, audit.ActionRunTemplate, "template:"+id.String(), map[string]interface{}{
		"run_id": job.ID.String(),
	})

	c.JSON(http.StatusAccepted, job)
}
