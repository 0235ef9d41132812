package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Wikid82/threatlens/internal/activity"
	"github.com/Wikid82/threatlens/internal/analysis"
	"github.com/Wikid82/threatlens/internal/forest"
	"github.com/Wikid82/threatlens/internal/logger"
	"github.com/Wikid82/threatlens/internal/metrics"
	"github.com/Wikid82/threatlens/internal/models"
	"github.com/Wikid82/threatlens/internal/risk"
	"github.com/Wikid82/threatlens/internal/simulator"
	"github.com/Wikid82/threatlens/internal/trend"
)

var ErrNotAlertLevel = errors.New("risk level Low is not an alert level")

// AlertView is an alert tied to the stored log it came from.
type AlertView struct {
	ID string `json:"id"`
	analysis.Alert
}

// AnalyzeSummary reports one analysis pass over stored logs.
type AnalyzeSummary struct {
	LogsAnalyzed  int                    `json:"logs_analyzed"`
	AlertsCreated int                    `json:"alerts_created"`
	HighRisk      int                    `json:"high_risk"`
	Notifications int                    `json:"notifications"`
	ModelVersion  int64                  `json:"model_version"`
	Skipped       []analysis.RecordError `json:"skipped"`
}

// GenerateSummary reports a simulated log generation.
type GenerateSummary struct {
	NormalLogs    int `json:"normal_logs"`
	AnomalousLogs int `json:"anomalous_logs"`
	TotalLogs     int `json:"total_logs"`
}

// AnalysisService runs the scoring pipeline against the store.
type AnalysisService struct {
	DB            *gorm.DB
	Pipeline      *analysis.Pipeline
	Activity      *ActivityService
	Notifications *NotificationService
	Simulator     *simulator.Simulator

	now func() time.Time
}

func NewAnalysisService(db *gorm.DB, pipeline *analysis.Pipeline, notifications *NotificationService, sim *simulator.Simulator) *AnalysisService {
	return &AnalysisService{
		DB:            db,
		Pipeline:      pipeline,
		Activity:      NewActivityService(db),
		Notifications: notifications,
		Simulator:     sim,
		now:           time.Now,
	}
}

// Train fits a model on the stored logs not labeled anomalous and records the
// run together with the serialised model.
func (s *AnalysisService) Train(ctx context.Context, trigger string) (*models.TrainingRun, error) {
	normal, err := s.Activity.NormalRecords()
	if err != nil {
		return nil, fmt.Errorf("load training data: %w", err)
	}

	// The run is stored before the model is served, so a failed write leaves
	// the served model and the stored history in step.
	var run *models.TrainingRun
	start := time.Now()
	res, err := s.Pipeline.TrainWith(ctx, normal, func(res analysis.TrainingResult) error {
		r, err := models.NewTrainingRun(res, res.Model, trigger, time.Since(start))
		if err != nil {
			return err
		}
		if err := s.DB.WithContext(ctx).Create(r).Error; err != nil {
			return fmt.Errorf("store training run: %w", err)
		}
		run = r
		return nil
	})
	metrics.ObserveTraining(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	metrics.SetModelVersion(res.Version)

	if s.Notifications != nil {
		_, _ = s.Notifications.Create(models.NotificationTypeSuccess, "Model trained",
			fmt.Sprintf("model v%d trained on %d records (%s)", res.Version, res.TrainingSamples, trigger))
	}
	return run, nil
}

// RestoreLatest serves the newest stored model. It returns nil when no model
// has ever been trained.
func (s *AnalysisService) RestoreLatest() (*models.TrainingRun, error) {
	var run models.TrainingRun
	err := s.DB.Order("version desc").Order("created_at desc").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m, err := run.DecodeModel()
	if err != nil {
		return nil, err
	}
	if err := s.Pipeline.Restore(m); err != nil {
		return nil, err
	}
	metrics.SetModelVersion(m.Version)
	return &run, nil
}

// TrainingHistory lists past training runs, newest first.
func (s *AnalysisService) TrainingHistory(limit int) ([]models.TrainingRun, error) {
	var runs []models.TrainingRun
	err := s.DB.Omit("model").Order("version desc").Limit(pageSize(limit)).Find(&runs).Error
	return runs, err
}

// Model describes the served model.
func (s *AnalysisService) Model() (analysis.TrainingResult, error) {
	return s.Pipeline.Model()
}

// AnalyzeStored scores stored logs and writes the results back. Without a
// trained model nothing is touched.
func (s *AnalysisService) AnalyzeStored(ctx context.Context, onlyUnscored bool) (AnalyzeSummary, error) {
	if _, err := s.Pipeline.Model(); err != nil {
		return AnalyzeSummary{}, err
	}
	logs, err := s.Activity.ForAnalysis(onlyUnscored)
	if err != nil {
		return AnalyzeSummary{}, err
	}
	if len(logs) == 0 {
		return AnalyzeSummary{}, ErrNoLogs
	}
	return s.scoreLogs(ctx, logs)
}

// SimulateAttack injects n attack logs, scores them and raises their alerts.
func (s *AnalysisService) SimulateAttack(ctx context.Context, n int) (AnalyzeSummary, error) {
	if _, err := s.Pipeline.Model(); err != nil {
		return AnalyzeSummary{}, err
	}
	if n <= 0 {
		n = simulator.DefaultAttack
	}
	logs, err := s.Activity.IngestLabeled(s.Simulator.Attack(n), models.SourceAttack)
	if err != nil {
		return AnalyzeSummary{}, err
	}
	logger.Log().WithField("logs", len(logs)).Warn("attack simulation injected")
	return s.scoreLogs(ctx, logs)
}

// GenerateLogs stores simulated normal and anomalous activity.
func (s *AnalysisService) GenerateLogs(normal, anomalous int) (GenerateSummary, error) {
	if normal < 0 || anomalous < 0 {
		return GenerateSummary{}, fmt.Errorf("log counts must not be negative")
	}
	batch := append(s.Simulator.Normal(normal), s.Simulator.Anomalous(anomalous)...)
	if _, err := s.Activity.IngestLabeled(batch, models.SourceSimulated); err != nil {
		return GenerateSummary{}, err
	}
	return GenerateSummary{NormalLogs: normal, AnomalousLogs: anomalous, TotalLogs: len(batch)}, nil
}

func (s *AnalysisService) scoreLogs(ctx context.Context, logs []models.ActivityLog) (AnalyzeSummary, error) {
	records := make([]activity.Record, len(logs))
	for i, l := range logs {
		records[i] = l.Record()
	}

	res, err := s.Pipeline.Analyze(ctx, records)
	if err != nil {
		return AnalyzeSummary{}, err
	}

	at := s.now()
	scoredLogs := make([]models.ActivityLog, 0, len(res.Scored))
	for _, sr := range res.Scored {
		l := logs[sr.Index]
		l.ApplyScore(sr, at)
		scoredLogs = append(scoredLogs, l)
	}
	if err := s.Activity.SaveScores(scoredLogs); err != nil {
		return AnalyzeSummary{}, err
	}

	alerts := s.Pipeline.ClassifyAndFilterAlerts(res.Scored)
	summary := AnalyzeSummary{
		LogsAnalyzed:  len(res.Scored),
		AlertsCreated: len(alerts),
		Skipped:       res.Skipped,
	}
	// logs still holds the levels from before this pass; re-scoring an
	// already high log must not notify twice.
	fresh := make([]AlertView, 0, len(alerts))
	for _, a := range alerts {
		metrics.IncAlert(string(a.RiskLevel))
		if a.RiskLevel == risk.High {
			summary.HighRisk++
		}
		if prev := logs[a.Index]; prev.RiskLevel != string(a.RiskLevel) {
			fresh = append(fresh, AlertView{ID: prev.ID, Alert: a})
		}
	}
	if len(res.Scored) > 0 {
		summary.ModelVersion = res.Scored[0].ModelVersion
	}
	metrics.AddAnalyzed(len(res.Scored), len(res.Skipped))

	if s.Notifications != nil {
		n, err := s.Notifications.NotifyAlerts(fresh)
		if err != nil {
			logger.Log().WithError(err).Warn("failed to record alert notifications")
		}
		summary.Notifications = n
	}

	logger.Log().WithFields(logrus.Fields{
		"analyzed":      summary.LogsAnalyzed,
		"skipped":       len(summary.Skipped),
		"alerts":        summary.AlertsCreated,
		"high_risk":     summary.HighRisk,
		"model_version": summary.ModelVersion,
	}).Info("activity analysis completed")
	return summary, nil
}

// AnalyzeBatch scores ad hoc records without storing them.
func (s *AnalysisService) AnalyzeBatch(ctx context.Context, records []activity.Record) (analysis.BatchResult, []analysis.Alert, error) {
	batch := append([]activity.Record(nil), records...)
	activity.Enrich(batch)

	res, err := s.Pipeline.Analyze(ctx, batch)
	if err != nil {
		return analysis.BatchResult{}, nil, err
	}
	metrics.AddAnalyzed(len(res.Scored), len(res.Skipped))
	return res, s.Pipeline.ClassifyAndFilterAlerts(res.Scored), nil
}

// Alerts returns stored alerts, highest risk first. level may be empty,
// Medium or High.
func (s *AnalysisService) Alerts(level risk.Level, limit int) ([]AlertView, error) {
	if level != "" && !level.IsAlert() {
		return nil, ErrNotAlertLevel
	}
	logs, err := s.Activity.Alerts(level, limit)
	if err != nil {
		return nil, err
	}

	scored := make([]analysis.ScoredRecord, 0, len(logs))
	for i, l := range logs {
		if sr, ok := l.Scored(); ok {
			sr.Index = i
			scored = append(scored, sr)
		}
	}
	alerts := s.Pipeline.ClassifyAndFilterAlerts(scored)
	views := make([]AlertView, len(alerts))
	for i, a := range alerts {
		views[i] = AlertView{ID: logs[a.Index].ID, Alert: a}
	}
	return views, nil
}

// Trend aggregates analyzed logs of the trailing window into hourly buckets.
func (s *AnalysisService) Trend(hours int) ([]trend.Bucket, error) {
	hours = trend.NormalizeWindow(hours)
	since := s.now().UTC().Truncate(time.Hour).Add(-time.Duration(hours-1) * time.Hour)
	logs, err := s.Activity.ScoredSince(since)
	if err != nil {
		return nil, err
	}
	scored := make([]analysis.ScoredRecord, 0, len(logs))
	for _, l := range logs {
		if sr, ok := l.Scored(); ok {
			scored = append(scored, sr)
		}
	}
	return s.Pipeline.Trend(scored, hours), nil
}

// Stats returns the dashboard counters with the served model version.
func (s *AnalysisService) Stats() (DashboardStats, error) {
	st, err := s.Activity.Stats()
	if err != nil {
		return DashboardStats{}, err
	}
	if m, err := s.Pipeline.Model(); err == nil {
		st.ModelVersion = m.Version
	} else if !errors.Is(err, forest.ErrModelNotTrained) {
		return DashboardStats{}, err
	}
	return st, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
