package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/threatlens/internal/analysis"
	"github.com/Wikid82/threatlens/internal/api/handlers"
	"github.com/Wikid82/threatlens/internal/services"
	"github.com/Wikid82/threatlens/internal/simulator"
)

type testAPI struct {
	router   *gin.Engine
	analysis *services.AnalysisService
}

func setupAPI(t testing.TB) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := handlers.OpenTestDB(t)

	cfg := analysis.DefaultConfig()
	cfg.Forest.TreeCount = 40
	cfg.Forest.SubsampleSize = 64
	cfg.Workers = 2
	notifications := services.NewNotificationService(db, "")
	svc := services.NewAnalysisService(db, analysis.New(cfg), notifications, simulator.New(5))

	health := handlers.NewHealthHandler(svc)
	logs := handlers.NewLogsHandler(svc)
	model := handlers.NewModelHandler(svc)
	an := handlers.NewAnalysisHandler(svc)
	notes := handlers.NewNotificationHandler(notifications)
	system := handlers.NewSystemHandler(svc.Activity)

	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/health", health.Check)
	api.POST("/logs/generate", logs.Generate)
	api.GET("/logs", logs.List)
	api.POST("/logs", logs.Create)
	api.GET("/logs/:id", logs.Get)
	api.DELETE("/logs/:id", logs.Delete)
	api.POST("/model/train", model.Train)
	api.GET("/model", model.Get)
	api.GET("/model/history", model.History)
	api.POST("/analyze", an.Analyze)
	api.POST("/analyze/batch", an.Batch)
	api.POST("/simulate-attack", an.SimulateAttack)
	api.GET("/alerts", an.Alerts)
	api.GET("/dashboard/stats", an.Stats)
	api.GET("/dashboard/trend", an.Trend)
	api.GET("/notifications", notes.List)
	api.POST("/notifications/read-all", notes.MarkAllAsRead)
	api.POST("/notifications/:id/read", notes.MarkAsRead)
	api.DELETE("/reset", system.Reset)

	return &testAPI{router: r, analysis: svc}
}

func (a *testAPI) do(t testing.TB, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t testing.TB, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// seedAndTrain stores simulated logs and trains the first model.
func (a *testAPI) seedAndTrain(t testing.TB) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/logs/generate", gin.H{"normal_count": 200, "anomaly_count": 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = a.do(t, http.MethodPost, "/api/v1/model/train", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
