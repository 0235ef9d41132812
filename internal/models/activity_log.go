package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikid82/threatlens/internal/activity"
	"github.com/Wikid82/threatlens/internal/analysis"
	"github.com/Wikid82/threatlens/internal/risk"
)

// Log sources.
const (
	SourceAPI       = "api"
	SourceSimulated = "simulated"
	SourceAttack    = "attack"
)

// ActivityLog is a stored activity record. The scoring columns are empty until
// the log has been analyzed.
type ActivityLog struct {
	ID                  string    `gorm:"primaryKey" json:"id"`
	UserID              string    `gorm:"index" json:"user_id"`
	Timestamp           time.Time `gorm:"index" json:"timestamp"`
	LoginLocation       string    `json:"login_location"`
	LoginTime           string    `json:"login_time"`
	FailedLoginAttempts int       `json:"failed_login_attempts"`
	PrivilegeChange     bool      `json:"privilege_change"`
	VMCreationCount     int       `json:"vm_creation_count"`
	ResourceAccessLevel string    `json:"resource_access_level"`
	UnusualLocationFlag bool      `json:"unusual_location_flag"`
	AccessSpikeScore    float64   `json:"access_spike_score"`
	LoginFrequency      float64   `json:"login_frequency"`

	// IsAnomaly is the ground-truth label, known for simulated logs only.
	IsAnomaly bool   `gorm:"index" json:"is_anomaly"`
	Source    string `json:"source"`

	AnomalyScore *float64   `json:"anomaly_score"`
	Anomalous    *bool      `json:"anomalous"`
	RiskScore    *float64   `gorm:"index" json:"risk_score"`
	RiskLevel    string     `gorm:"index" json:"risk_level,omitempty"`
	Explanation  []string   `gorm:"serializer:json" json:"explanation"`
	ModelVersion int64      `json:"model_version,omitempty"`
	AnalyzedAt   *time.Time `json:"analyzed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (l *ActivityLog) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return
}

// NewActivityLog maps a record onto a new, unscored log.
func NewActivityLog(r activity.Record, label bool, source string) ActivityLog {
	return ActivityLog{
		UserID:              r.UserID,
		Timestamp:           r.Timestamp.UTC(),
		LoginLocation:       r.LoginLocation,
		LoginTime:           r.LoginTime,
		FailedLoginAttempts: r.FailedLoginAttempts,
		PrivilegeChange:     r.PrivilegeChange,
		VMCreationCount:     r.VMCreationCount,
		ResourceAccessLevel: string(r.ResourceAccessLevel),
		UnusualLocationFlag: r.UnusualLocationFlag,
		AccessSpikeScore:    r.AccessSpikeScore,
		LoginFrequency:      r.LoginFrequency,
		IsAnomaly:           label,
		Source:              source,
	}
}

// Record returns the activity record stored in the log.
func (l ActivityLog) Record() activity.Record {
	return activity.Record{
		UserID:              l.UserID,
		Timestamp:           l.Timestamp,
		LoginLocation:       l.LoginLocation,
		LoginTime:           l.LoginTime,
		FailedLoginAttempts: l.FailedLoginAttempts,
		PrivilegeChange:     l.PrivilegeChange,
		VMCreationCount:     l.VMCreationCount,
		ResourceAccessLevel: activity.AccessLevel(l.ResourceAccessLevel),
		UnusualLocationFlag: l.UnusualLocationFlag,
		AccessSpikeScore:    l.AccessSpikeScore,
		LoginFrequency:      l.LoginFrequency,
	}
}

// ApplyScore copies the result of a scoring pass onto the log.
func (l *ActivityLog) ApplyScore(s analysis.ScoredRecord, at time.Time) {
	anomaly, anomalous, score := s.AnomalyScore, s.Anomalous, s.RiskScore
	at = at.UTC()
	l.AnomalyScore = &anomaly
	l.Anomalous = &anomalous
	l.RiskScore = &score
	l.RiskLevel = string(s.RiskLevel)
	l.Explanation = s.Explanation
	l.ModelVersion = s.ModelVersion
	l.AnalyzedAt = &at
}

// IsScored reports whether the log has been analyzed.
func (l ActivityLog) IsScored() bool {
	return l.RiskScore != nil && l.AnomalyScore != nil
}

// Scored rebuilds the scoring result of an analyzed log.
func (l ActivityLog) Scored() (analysis.ScoredRecord, bool) {
	if !l.IsScored() {
		return analysis.ScoredRecord{}, false
	}
	s := analysis.ScoredRecord{
		Record:       l.Record(),
		AnomalyScore: *l.AnomalyScore,
		RiskScore:    *l.RiskScore,
		RiskLevel:    risk.Level(l.RiskLevel),
		Explanation:  l.Explanation,
		ModelVersion: l.ModelVersion,
	}
	if l.Anomalous != nil {
		s.Anomalous = *l.Anomalous
	}
	if s.Explanation == nil {
		s.Explanation = []string{}
	}
	return s, true
}
