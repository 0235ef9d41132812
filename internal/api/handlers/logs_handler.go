package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/threatlens/internal/activity"
	"github.com/Wikid82/threatlens/internal/api/middleware"
	"github.com/Wikid82/threatlens/internal/models"
	"github.com/Wikid82/threatlens/internal/risk"
	"github.com/Wikid82/threatlens/internal/services"
	"github.com/Wikid82/threatlens/internal/simulator"
	"github.com/Wikid82/threatlens/internal/util"
)

// maxGenerated bounds one simulated generation request.
const maxGenerated = 10000

type LogsHandler struct {
	activity *services.ActivityService
	analysis *services.AnalysisService
}

func NewLogsHandler(analysis *services.AnalysisService) *LogsHandler {
	return &LogsHandler{activity: analysis.Activity, analysis: analysis}
}

type generateRequest struct {
	NormalCount  *int `json:"normal_count"`
	AnomalyCount *int `json:"anomaly_count"`
}

// Generate stores simulated activity. An empty body uses the default counts.
func (h *LogsHandler) Generate(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	normal, anomalous := simulator.DefaultNormal, simulator.DefaultAnomaly
	if req.NormalCount != nil {
		normal = *req.NormalCount
	}
	if req.AnomalyCount != nil {
		anomalous = *req.AnomalyCount
	}
	if normal < 0 || anomalous < 0 || normal+anomalous > maxGenerated {
		c.JSON(http.StatusBadRequest, gin.H{"error": "counts must be non-negative and total at most " + strconv.Itoa(maxGenerated)})
		return
	}

	summary, err := h.analysis.GenerateLogs(normal, anomalous)
	if err != nil {
		respondError(c, err, "Failed to generate logs")
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (h *LogsHandler) List(c *gin.Context) {
	limit, ok := intQuery(c, "limit", services.DefaultPageSize)
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset", 0)
	if !ok {
		return
	}
	filter := services.LogFilter{UserID: c.Query("user_id"), Limit: limit, Offset: offset}
	if raw := c.Query("risk_level"); raw != "" {
		level, err := risk.ParseLevel(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.RiskLevel = level
	}
	if raw := c.Query("analyzed"); raw != "" {
		analyzed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "analyzed must be true or false"})
			return
		}
		filter.Analyzed = &analyzed
	}

	logs, total, err := h.activity.List(filter)
	if err != nil {
		respondError(c, err, "Failed to list logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

type createLogsRequest struct {
	Records []activity.Record `json:"records" binding:"required"`
}

// Create stores caller supplied records. The batch is all or nothing.
func (h *LogsHandler) Create(c *gin.Context) {
	var req createLogsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Records) == 0 || len(req.Records) > maxGenerated {
		c.JSON(http.StatusBadRequest, gin.H{"error": "records must hold between 1 and " + strconv.Itoa(maxGenerated) + " entries"})
		return
	}

	logs, err := h.activity.Ingest(req.Records, models.SourceAPI)
	if err != nil {
		respondError(c, err, "Failed to store logs")
		return
	}
	middleware.GetRequestLogger(c).WithField("logs", len(logs)).Info("activity logs ingested")
	c.JSON(http.StatusCreated, gin.H{"created": len(logs), "logs": logs})
}

func (h *LogsHandler) Get(c *gin.Context) {
	l, err := h.activity.Get(c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get log")
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *LogsHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.activity.Delete(id); err != nil {
		respondError(c, err, "Failed to delete log")
		return
	}
	middleware.GetRequestLogger(c).WithField("id", util.SanitizeForLog(id)).Info("activity log deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Log deleted"})
}
