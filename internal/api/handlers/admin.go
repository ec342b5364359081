package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/runforge/runforge/internal/audit"
	"github.com/runforge/runforge/internal/ledger"
	"github.com/runforge/runforge/internal/models"
	"github.com/runforge/runforge/internal/orchestrator"
	"github.com/runforge/runforge/internal/ratelimit"
	"github.com/runforge/runforge/internal/template"
	"gorm.io/gorm"
)

type AdminHandler struct {
	db           *gorm.DB
	orchestrator *orchestrator.Service
	ledger       *ledger.Service
	limiter      *ratelimit.Limiter
}

func NewAdminHandler(db *gorm.DB, orch *orchestrator.Service, led *ledger.Service, limiter *ratelimit.Limiter) *AdminHandler {
	return &AdminHandler{db: db, orchestrator: orch, ledger: led, limiter: limiter}
}

// CreateTemplateRequest carries a new template definition
type CreateTemplateRequest struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	DefinitionJSON string `json:"definition_json" binding:"required"`
	InputSchema    string `json:"input_schema"`
	IsFree         bool   `json:"is_free"`
	PricePerRun    int64  `json:"price_per_run"`
	MaxRunsPerDay  int    `json:"max_runs_per_day"`
}

// ListAllTemplates returns every template including inactive ones
func (h *AdminHandler) ListAllTemplates(c *gin.Context) {
	var templates []models.Template
	if err := h.db.Order("created_at DESC").Find(&templates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch templates"})
		return
	}
	c.JSON(http.StatusOK, templates)
}

// CreateTemplate registers a new template in draft (inactive) state
func (h *AdminHandler) CreateTemplate(c *gin.Context) {
	userID := getUserID(c)

	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if _, err := template.Document(req.DefinitionJSON).Decode(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "definition_json is not valid JSON"})
		return
	}
	if req.InputSchema != "" {
		if _, err := template.ParseSchema(req.InputSchema); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "input_schema is not a valid schema"})
			return
		}
	}

	tmpl := models.Template{
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		DefinitionJSON: req.DefinitionJSON,
		InputSchema:    req.InputSchema,
		IsFree:         req.IsFree,
		PricePerRun:    req.PricePerRun,
		MaxRunsPerDay:  req.MaxRunsPerDay,
		IsActive:       false,
		CreatedBy:      userID,
	}

	if err := h.db.Create(&tmpl).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to create template"})
		return
	}

	audit.LogAction(h.db, userID, audit.ActionCreateTemplate, "template:"+tmpl.ID.String(), map[string]interface{}{
		"name": tmpl.Name,
	})

	c.JSON(http.StatusCreated, tmpl)
}

// UpdateTemplate modifies a template's definition or pricing
func (h *AdminHandler) UpdateTemplate(c *gin.Context) {
	userID := getUserID(c)

	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var tmpl models.Template
	if err := h.db.First(&tmpl, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Template not found"})
		return
	}

	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	tmpl.Name = req.Name
	tmpl.Description = req.Description
	tmpl.Category = req.Category
	tmpl.DefinitionJSON = req.DefinitionJSON
	tmpl.InputSchema = req.InputSchema
	tmpl.IsFree = req.IsFree
	tmpl.PricePerRun = req.PricePerRun
	tmpl.MaxRunsPerDay = req.MaxRunsPerDay

	if err := h.db.Save(&tmpl).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to update template"})
		return
	}

	audit.LogAction(h.db, userID, audit.ActionUpdateTemplate, "template:"+tmpl.ID.String(), nil)
	c.JSON(http.StatusOK, tmpl)
}

// ActivateTemplate publishes a template to the marketplace. A template must
// have a recorded engine workflow id (set by a successful test run) before it
// can be activated; activation also provisions the daily quota counter when
// the template carries a per-day limit.
func (h *AdminHandler) ActivateTemplate(c *gin.Context) {
	userID := getUserID(c)

	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var tmpl models.Template
	if err := h.db.First(&tmpl, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Template not found"})
		return
	}

	if tmpl.ExternalWorkflowID == "" {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Template must pass a test run before activation"})
		return
	}

	if tmpl.MaxRunsPerDay > 0 {
		if err := h.limiter.Provision(c.Request.Context(), tmpl.ID, tmpl.MaxRunsPerDay); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to provision run quota"})
			return
		}
	}

	if err := h.db.Model(&tmpl).Update("is_active", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to activate template"})
		return
	}

	audit.LogAction(h.db, userID, audit.ActionActivateTemplate, "template:"+tmpl.ID.String(), nil)
	c.JSON(http.StatusOK, gin.H{"message": "Template activated", "template_id": tmpl.ID})
}

// DeactivateTemplate removes a template from the marketplace
func (h *AdminHandler) DeactivateTemplate(c *gin.Context) {
	userID := getUserID(c)

	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	result := h.db.Model(&models.Template{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to deactivate template"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Template not found"})
		return
	}

	audit.LogAction(h.db, userID, audit.ActionDeactivateTemplate, "template:"+id.String(), nil)
	c.JSON(http.StatusOK, gin.H{"message": "Template deactivated", "template_id": id})
}

// TestTemplateRequest carries sample inputs for a template dry run
type TestTemplateRequest struct {
	Inputs map[string]string `json:"inputs"`
}

// TestTemplate performs a dry run of a template against the engine without
// charging credits or recording an execution
func (h *AdminHandler) TestTemplate(c *gin.Context) {
	userID := getUserID(c)

	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req TestTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.orchestrator.TestRun(c.Request.Context(), id, req.Inputs)
	if err != nil {
		if err == orchestrator.ErrTemplateNotFound {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Test run failed"})
		return
	}

	audit.LogAction(h.db, userID, audit.ActionTestTemplate, "template:"+id.String(), map[string]interface{}{
		"success": result.Success,
	})

	c.JSON(http.StatusOK, result)
}

// GrantCreditsRequest carries an admin credit grant
type GrantCreditsRequest struct {
	UserID      uuid.UUID `json:"user_id" binding:"required"`
	Amount      int64     `json:"amount" binding:"required"`
	Description string    `json:"description"`
}

// GrantCredits credits (or debits) a user's balance through the ledger
func (h *AdminHandler) GrantCredits(c *gin.Context) {
	adminID := getUserID(c)

	var req GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	description := req.Description
	if description == "" {
		description = "Admin credit grant"
	}

	balance, err := h.ledger.RecordTransaction(c.Request.Context(), req.UserID, req.Amount, description, "admin:"+adminID.String())
	if err != nil {
		switch err {
		case ledger.ErrUserNotFound:
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "User not found"})
		case ledger.ErrInsufficientCredits:
			c.JSON(http.StatusConflict, ErrorResponse{Error: "Adjustment would make balance negative"})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to record transaction"})
		}
		return
	}

	audit.LogAction(h.db, adminID, audit.ActionGrantCredits, "user:"+req.UserID.String(), map[string]interface{}{
		"amount":  req.Amount,
		"balance": balance,
	})

	c.JSON(http.StatusOK, gin.H{"user_id": req.UserID, "balance": balance})
}

// ListAuditLogs returns recent audit entries, newest first
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var logs []models.AuditLog
	query := h.db.Order("timestamp DESC").Limit(limit)
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if err := query.Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch audit logs"})
		return
	}

	c.JSON(http.StatusOK, logs)
}
