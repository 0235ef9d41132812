package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/Wikid82/threatlens/internal/api/handlers"
	"github.com/Wikid82/threatlens/internal/api/middleware"
	"github.com/Wikid82/threatlens/internal/config"
	"github.com/Wikid82/threatlens/internal/database"
	"github.com/Wikid82/threatlens/internal/logger"
	"github.com/Wikid82/threatlens/internal/services"
)

// Register wires up API routes and performs automatic migrations. The
// metrics endpoint is served from gatherer when it is non-nil.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config, analysis *services.AnalysisService, gatherer prometheus.Gatherer) error {
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	guard, err := middleware.NewAdminGuard(cfg.AdminToken)
	if err != nil {
		return fmt.Errorf("admin guard: %w", err)
	}
	if !guard.Enabled() {
		logger.Log().Warn("THREATLENS_ADMIN_TOKEN is not set; admin endpoints are disabled")
	}

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	healthHandler := handlers.NewHealthHandler(analysis)
	router.GET("/health", healthHandler.Check)

	api := router.Group("/api/v1")
	api.GET("/health", healthHandler.Check)

	// Activity logs
	logsHandler := handlers.NewLogsHandler(analysis)
	api.POST("/logs/generate", logsHandler.Generate)
	api.GET("/logs", logsHandler.List)
	api.POST("/logs", logsHandler.Create)
	api.GET("/logs/:id", logsHandler.Get)
	api.DELETE("/logs/:id", logsHandler.Delete)

	// Model
	modelHandler := handlers.NewModelHandler(analysis)
	api.POST("/model/train", modelHandler.Train)
	api.GET("/model", modelHandler.Get)
	api.GET("/model/history", modelHandler.History)

	// Analysis and dashboard
	analysisHandler := handlers.NewAnalysisHandler(analysis)
	api.POST("/analyze", analysisHandler.Analyze)
	api.POST("/analyze/batch", analysisHandler.Batch)
	api.POST("/simulate-attack", analysisHandler.SimulateAttack)
	api.GET("/alerts", analysisHandler.Alerts)
	api.GET("/dashboard/stats", analysisHandler.Stats)
	api.GET("/dashboard/trend", analysisHandler.Trend)

	// Notifications
	if analysis.Notifications != nil {
		notificationHandler := handlers.NewNotificationHandler(analysis.Notifications)
		api.GET("/notifications", notificationHandler.List)
		api.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)
		api.POST("/notifications/:id/read", notificationHandler.MarkAsRead)
	}

	// Admin
	admin := api.Group("/")
	admin.Use(guard.Require())
	{
		systemHandler := handlers.NewSystemHandler(analysis.Activity)
		admin.DELETE("/reset", systemHandler.Reset)
	}

	return nil
}
