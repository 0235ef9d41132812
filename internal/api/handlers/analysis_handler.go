package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/threatlens/internal/activity"
	"github.com/Wikid82/threatlens/internal/analysis"
	"github.com/Wikid82/threatlens/internal/risk"
	"github.com/Wikid82/threatlens/internal/services"
	"github.com/Wikid82/threatlens/internal/simulator"
	"github.com/Wikid82/threatlens/internal/trend"
)

const maxBatchRecords = 10000

type AnalysisHandler struct {
	analysis *services.AnalysisService
}

func NewAnalysisHandler(analysis *services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis}
}

// Analyze scores the stored logs, or only the pending ones with ?pending=true.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	summary, err := h.analysis.AnalyzeStored(c.Request.Context(), c.Query("pending") == "true")
	if err != nil {
		respondError(c, err, "Failed to analyze logs")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Records are decoded one by one so a malformed entry is skipped like any
// other invalid record.
type batchRequest struct {
	Records []json.RawMessage `json:"records" binding:"required"`
}

// Batch scores ad hoc records without storing them. Invalid records are
// reported under skipped and do not fail the request.
func (h *AnalysisHandler) Batch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Records) == 0 || len(req.Records) > maxBatchRecords {
		c.JSON(http.StatusBadRequest, gin.H{"error": "records must hold between 1 and " + strconv.Itoa(maxBatchRecords) + " entries"})
		return
	}

	records, pos, undecodable := decodeRecords(req.Records)
	res, alerts, err := h.analysis.AnalyzeBatch(c.Request.Context(), records)
	if err != nil {
		respondError(c, err, "Failed to analyze records")
		return
	}
	for i := range res.Scored {
		res.Scored[i].Index = pos[res.Scored[i].Index]
	}
	for i := range res.Skipped {
		res.Skipped[i].Index = pos[res.Skipped[i].Index]
	}
	for i := range alerts {
		alerts[i].Index = pos[alerts[i].Index]
	}
	res.Skipped = append(res.Skipped, undecodable...)
	sort.SliceStable(res.Skipped, func(i, j int) bool { return res.Skipped[i].Index < res.Skipped[j].Index })
	c.JSON(http.StatusOK, gin.H{
		"scored":  res.Scored,
		"skipped": res.Skipped,
		"alerts":  alerts,
	})
}

type attackRequest struct {
	Count int `json:"count"`
}

func (h *AnalysisHandler) SimulateAttack(c *gin.Context) {
	var req attackRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Count < 0 || req.Count > maxGenerated {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 0 and " + strconv.Itoa(maxGenerated)})
		return
	}
	if req.Count == 0 {
		req.Count = simulator.DefaultAttack
	}

	summary, err := h.analysis.SimulateAttack(c.Request.Context(), req.Count)
	if err != nil {
		respondError(c, err, "Failed to simulate attack")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Alerts lists stored Medium and High alerts, highest risk first.
func (h *AnalysisHandler) Alerts(c *gin.Context) {
	limit, ok := intQuery(c, "limit", services.DefaultPageSize)
	if !ok {
		return
	}
	var level risk.Level
	if raw := c.Query("risk_level"); raw != "" {
		l, err := risk.ParseLevel(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		level = l
	}

	alerts, err := h.analysis.Alerts(level, limit)
	if err != nil {
		respondError(c, err, "Failed to list alerts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (h *AnalysisHandler) Stats(c *gin.Context) {
	st, err := h.analysis.Stats()
	if err != nil {
		respondError(c, err, "Failed to compute statistics")
		return
	}
	c.JSON(http.StatusOK, st)
}

// Trend returns hourly buckets for the trailing ?hours= window.
func (h *AnalysisHandler) Trend(c *gin.Context) {
	hours, ok := intQuery(c, "hours", trend.DefaultWindowHours)
	if !ok {
		return
	}
	buckets, err := h.analysis.Trend(hours)
	if err != nil {
		respondError(c, err, "Failed to compute trend")
		return
	}
	c.JSON(http.StatusOK, gin.H{"hours": trend.NormalizeWindow(hours), "buckets": buckets})
}

// decodeRecords returns the decodable records, their positions in the request
// and an error entry for every record that could not be decoded.
func decodeRecords(raw []json.RawMessage) ([]activity.Record, []int, []analysis.RecordError) {
	records := make([]activity.Record, 0, len(raw))
	pos := make([]int, 0, len(raw))
	var failed []analysis.RecordError
	for i, msg := range raw {
		var r activity.Record
		if err := json.Unmarshal(msg, &r); err != nil {
			invalid := decodeError(err)
			failed = append(failed, analysis.RecordError{
				Index:   i,
				UserID:  r.UserID,
				Message: invalid.Error(),
				Err:     invalid,
			})
			continue
		}
		records = append(records, r)
		pos = append(pos, i)
	}
	return records, pos, failed
}

func decodeError(err error) *activity.InvalidRecordError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &activity.InvalidRecordError{
			Field:  typeErr.Field,
			Reason: "expected " + typeErr.Type.String() + ", got " + typeErr.Value,
		}
	}
	return &activity.InvalidRecordError{Field: "record", Reason: err.Error()}
}
