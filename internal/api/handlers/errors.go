package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/threatlens/internal/activity"
	"github.com/Wikid82/threatlens/internal/api/middleware"
	"github.com/Wikid82/threatlens/internal/forest"
	"github.com/Wikid82/threatlens/internal/services"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var invalid *activity.InvalidRecordError
	switch {
	case errors.Is(err, forest.ErrModelNotTrained),
		errors.Is(err, forest.ErrInsufficientData),
		errors.Is(err, services.ErrNoLogs),
		errors.Is(err, services.ErrNotAlertLevel),
		errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrLogNotFound),
		errors.Is(err, services.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error. Client errors carry the error text;
// server errors are logged and answered with msg only.
func respondError(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		middleware.GetRequestLogger(c).WithError(err).Error(msg)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// intQuery reads an optional non-negative integer query parameter.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return v, true
}
