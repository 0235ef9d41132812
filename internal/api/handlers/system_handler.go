package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/threatlens/internal/api/middleware"
	"github.com/Wikid82/threatlens/internal/services"
)

type SystemHandler struct {
	activity *services.ActivityService
}

func NewSystemHandler(activity *services.ActivityService) *SystemHandler {
	return &SystemHandler{activity: activity}
}

// Reset deletes every stored log and notification. The served model and the
// training history are kept.
func (h *SystemHandler) Reset(c *gin.Context) {
	deleted, err := h.activity.Reset()
	if err != nil {
		respondError(c, err, "Failed to reset data")
		return
	}
	middleware.GetRequestLogger(c).WithField("deleted_logs", deleted).Warn("activity data reset")
	c.JSON(http.StatusOK, gin.H{"message": "Data reset", "deleted_logs": deleted})
}
