package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/runforge/runforge/internal/api/handlers"
	"github.com/runforge/runforge/internal/auth"
	"github.com/runforge/runforge/internal/config"
	"github.com/runforge/runforge/internal/ledger"
	"github.com/runforge/runforge/internal/orchestrator"
	"github.com/runforge/runforge/internal/ratelimit"
	"gorm.io/gorm"
)

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *gorm.DB, authenticator *auth.Authenticator, orch *orchestrator.Service, led *ledger.Service, limiter *ratelimit.Limiter) *gin.Engine {
	// Set Gin mode
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/health", handlers.HealthCheck)
		public.POST("/auth/signup", handlers.Signup(authenticator, db))
		public.POST("/auth/login", handlers.Login(authenticator, db))
	}

	// Initialize handlers
	templateHandler := handlers.NewTemplateHandler(db, orch)
	runHandler := handlers.NewRunHandler(db)
	executionHandler := handlers.NewExecutionHandler(db, orch)
	creditsHandler := handlers.NewCreditsHandler(led)
	adminHandler := handlers.NewAdminHandler(db, orch, led, limiter)

	// Protected routes (require authentication)
	protected := router.Group("/api/v1")
	protected.Use(authenticator.Middleware())
	{
		protected.GET("/auth/me", handlers.Me)

		// Marketplace catalog
		protected.GET("/templates", templateHandler.ListTemplates)
		protected.GET("/templates/:id", templateHandler.GetTemplate)
		protected.POST("/templates/:id/run", templateHandler.RunTemplate)

		// Run polling
		protected.GET("/runs", runHandler.ListRuns)
		protected.GET("/runs/:id", runHandler.GetRun)

		// Execution history
		protected.GET("/executions", executionHandler.ListExecutions)
		protected.GET("/executions/:id/details", executionHandler.GetExecutionDetails)

		// Credits
		protected.GET("/credits/balance", creditsHandler.GetBalance)
		protected.GET("/credits/transactions", creditsHandler.ListTransactions)

		// Admin endpoints
		admin := protected.Group("/admin")
		admin.Use(authenticator.AdminMiddleware())
		{
			admin.GET("/templates", adminHandler.ListAllTemplates)
			admin.POST("/templates", adminHandler.CreateTemplate)
			admin.PUT("/templates/:id", adminHandler.UpdateTemplate)
			admin.POST("/templates/:id/activate", adminHandler.ActivateTemplate)
			admin.POST("/templates/:id/deactivate", adminHandler.DeactivateTemplate)
			admin.POST("/templates/:id/test", adminHandler.TestTemplate)
			admin.POST("/credits/grant", adminHandler.GrantCredits)
			admin.GET("/audit-logs", adminHandler.ListAuditLogs)
		}
	}

	slog.Info("API router initialized", "mode", cfg.Server.Mode)
	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		slog.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"ip", c.ClientIP(),
		)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
