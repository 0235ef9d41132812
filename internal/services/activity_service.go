package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Wikid82/threatlens/internal/activity"
	"github.com/Wikid82/threatlens/internal/models"
	"github.com/Wikid82/threatlens/internal/risk"
	"github.com/Wikid82/threatlens/internal/simulator"
)

var (
	ErrLogNotFound = errors.New("activity log not found")
	ErrNoLogs      = errors.New("no activity logs stored")
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
	insertBatchSize = 200
)

// ActivityService stores activity logs and answers the read queries the
// dashboard needs.
type ActivityService struct {
	DB *gorm.DB
}

func NewActivityService(db *gorm.DB) *ActivityService {
	return &ActivityService{DB: db}
}

// LogFilter narrows List. Zero values mean no filter.
type LogFilter struct {
	UserID    string
	RiskLevel risk.Level
	Analyzed  *bool
	Limit     int
	Offset    int
}

// DashboardStats summarises the store.
type DashboardStats struct {
	TotalLogs         int64   `json:"total_logs"`
	AnalyzedLogs      int64   `json:"analyzed_logs"`
	TotalAlerts       int64   `json:"total_alerts"`
	LowRisk           int64   `json:"low_risk"`
	MediumRisk        int64   `json:"medium_risk"`
	HighRisk          int64   `json:"high_risk"`
	AverageRisk       float64 `json:"average_risk"`
	DetectedAnomalies int64   `json:"detected_anomalies"`
	LabeledAnomalies  int64   `json:"labeled_anomalies"`
	HighRiskUsers     int64   `json:"high_risk_users"`
	ModelVersion      int64   `json:"model_version"`
}

// Ingest enriches, validates and stores records. The whole batch is rejected
// when any record is invalid; the error names the offending index.
func (s *ActivityService) Ingest(records []activity.Record, source string) ([]models.ActivityLog, error) {
	labeled := make([]simulator.LabeledRecord, len(records))
	for i, r := range records {
		labeled[i] = simulator.LabeledRecord{Record: r}
	}
	return s.IngestLabeled(labeled, source)
}

// IngestLabeled is Ingest for records whose ground truth is known.
func (s *ActivityService) IngestLabeled(records []simulator.LabeledRecord, source string) ([]models.ActivityLog, error) {
	if len(records) == 0 {
		return []models.ActivityLog{}, nil
	}

	plain := simulator.Records(records)
	activity.Enrich(plain)
	logs := make([]models.ActivityLog, len(plain))
	for i, r := range plain {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		logs[i] = models.NewActivityLog(r, records[i].Anomalous, source)
	}

	if err := s.DB.CreateInBatches(&logs, insertBatchSize).Error; err != nil {
		return nil, fmt.Errorf("store activity logs: %w", err)
	}
	return logs, nil
}

// List returns one page of logs, newest first, and the total matching count.
func (s *ActivityService) List(f LogFilter) ([]models.ActivityLog, int64, error) {
	q := s.DB.Model(&models.ActivityLog{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.RiskLevel != "" {
		q = q.Where("risk_level = ?", string(f.RiskLevel))
	}
	if f.Analyzed != nil {
		if *f.Analyzed {
			q = q.Where("risk_score IS NOT NULL")
		} else {
			q = q.Where("risk_score IS NULL")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.ActivityLog
	err := q.Order("timestamp desc").Limit(pageSize(f.Limit)).Offset(max(f.Offset, 0)).Find(&logs).Error
	return logs, total, err
}

// Get returns one log.
func (s *ActivityService) Get(id string) (*models.ActivityLog, error) {
	var l models.ActivityLog
	if err := s.DB.Where("id = ?", id).First(&l).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}
	return &l, nil
}

// Delete removes one log.
func (s *ActivityService) Delete(id string) error {
	res := s.DB.Where("id = ?", id).Delete(&models.ActivityLog{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLogNotFound
	}
	return nil
}

// Reset deletes every log and notification. Training runs are kept so the
// served model survives.
func (s *ActivityService) Reset() (int64, error) {
	var deleted int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.ActivityLog{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Notification{}).Error
	})
	return deleted, err
}

// NormalRecords returns the records of every log not labeled anomalous.
func (s *ActivityService) NormalRecords() ([]activity.Record, error) {
	var logs []models.ActivityLog
	if err := s.DB.Where("is_anomaly = ?", false).Order("timestamp asc").Find(&logs).Error; err != nil {
		return nil, err
	}
	out := make([]activity.Record, len(logs))
	for i, l := range logs {
		out[i] = l.Record()
	}
	return out, nil
}

// ForAnalysis returns the logs to score: all of them, or only those not yet
// analyzed.
func (s *ActivityService) ForAnalysis(onlyUnscored bool) ([]models.ActivityLog, error) {
	q := s.DB.Order("timestamp asc")
	if onlyUnscored {
		q = q.Where("risk_score IS NULL")
	}
	var logs []models.ActivityLog
	return logs, q.Find(&logs).Error
}

// SaveScores writes the scoring columns of logs in one transaction.
func (s *ActivityService) SaveScores(logs []models.ActivityLog) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		for i := range logs {
			l := &logs[i]
			err := tx.Model(l).
				Select("anomaly_score", "anomalous", "risk_score", "risk_level", "explanation", "model_version", "analyzed_at").
				Updates(l).Error
			if err != nil {
				return fmt.Errorf("save scores for %s: %w", l.ID, err)
			}
		}
		return nil
	})
}

// Alerts returns analyzed logs classified Medium or High, highest risk first.
// A non-empty level restricts the result to that level.
func (s *ActivityService) Alerts(level risk.Level, limit int) ([]models.ActivityLog, error) {
	q := s.DB.Where("risk_score IS NOT NULL")
	if level != "" {
		q = q.Where("risk_level = ?", string(level))
	} else {
		q = q.Where("risk_level IN ?", []string{string(risk.Medium), string(risk.High)})
	}
	var logs []models.ActivityLog
	err := q.Order("risk_score desc").Order("timestamp desc").Limit(pageSize(limit)).Find(&logs).Error
	return logs, err
}

// ScoredSince returns analyzed logs with a timestamp at or after since.
func (s *ActivityService) ScoredSince(since time.Time) ([]models.ActivityLog, error) {
	var logs []models.ActivityLog
	err := s.DB.Where("risk_score IS NOT NULL AND timestamp >= ?", since.UTC()).
		Order("timestamp asc").Find(&logs).Error
	return logs, err
}

// Stats computes the dashboard counters.
func (s *ActivityService) Stats() (DashboardStats, error) {
	var st DashboardStats
	count := func(dst *int64, query string, args ...interface{}) error {
		q := s.DB.Model(&models.ActivityLog{})
		if query != "" {
			q = q.Where(query, args...)
		}
		return q.Count(dst).Error
	}

	steps := []error{
		count(&st.TotalLogs, ""),
		count(&st.AnalyzedLogs, "risk_score IS NOT NULL"),
		count(&st.LowRisk, "risk_level = ?", string(risk.Low)),
		count(&st.MediumRisk, "risk_level = ?", string(risk.Medium)),
		count(&st.HighRisk, "risk_level = ?", string(risk.High)),
		count(&st.DetectedAnomalies, "anomalous = ?", true),
		count(&st.LabeledAnomalies, "is_anomaly = ?", true),
	}
	if err := errors.Join(steps...); err != nil {
		return DashboardStats{}, err
	}
	st.TotalAlerts = st.MediumRisk + st.HighRisk

	err := s.DB.Model(&models.ActivityLog{}).
		Where("risk_level = ?", string(risk.High)).
		Distinct("user_id").Count(&st.HighRiskUsers).Error
	if err != nil {
		return DashboardStats{}, err
	}

	var avg struct{ Value *float64 }
	err = s.DB.Model(&models.ActivityLog{}).
		Select("AVG(risk_score) AS value").
		Where("risk_score IS NOT NULL").
		Scan(&avg).Error
	if err != nil {
		return DashboardStats{}, err
	}
	if avg.Value != nil {
		st.AverageRisk = round2(*avg.Value)
	}
	return st, nil
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}
