package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/threatlens/internal/models"
	"github.com/Wikid82/threatlens/internal/services"
)

type ModelHandler struct {
	analysis *services.AnalysisService
}

func NewModelHandler(analysis *services.AnalysisService) *ModelHandler {
	return &ModelHandler{analysis: analysis}
}

// Train fits a new model on the stored normal logs.
func (h *ModelHandler) Train(c *gin.Context) {
	run, err := h.analysis.Train(c.Request.Context(), models.TriggerAPI)
	if err != nil {
		respondError(c, err, "Failed to train model")
		return
	}
	c.JSON(http.StatusOK, run)
}

// Get describes the served model.
func (h *ModelHandler) Get(c *gin.Context) {
	m, err := h.analysis.Model()
	if err != nil {
		respondError(c, err, "Failed to get model")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *ModelHandler) History(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 20)
	if !ok {
		return
	}
	runs, err := h.analysis.TrainingHistory(limit)
	if err != nil {
		respondError(c, err, "Failed to list training runs")
		return
	}
	c.JSON(http.StatusOK, runs)
}
