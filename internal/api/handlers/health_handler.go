package handlers

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/threatlens/internal/services"
	"github.com/Wikid82/threatlens/internal/version"
)

// getLocalIP returns the non-loopback local IP of the host
func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}

type HealthHandler struct {
	analysis *services.AnalysisService
}

func NewHealthHandler(analysis *services.AnalysisService) *HealthHandler {
	return &HealthHandler{analysis: analysis}
}

// Check responds with service metadata and whether a model is being served.
// An untrained service is still healthy.
func (h *HealthHandler) Check(c *gin.Context) {
	model := gin.H{"trained": false}
	if m, err := h.analysis.Model(); err == nil {
		model = gin.H{"trained": true, "version": m.Version, "trained_at": m.TrainedAt}
	}
	info := version.Current()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     info.Name,
		"version":     info.Version,
		"git_commit":  info.GitCommit,
		"build_time":  info.BuildTime,
		"internal_ip": getLocalIP(),
		"model":       model,
	})
}
