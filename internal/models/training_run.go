package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikid82/threatlens/internal/analysis"
	"github.com/Wikid82/threatlens/internal/forest"
)

// Training triggers.
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerSeed     = "seed"
)

// TrainingRun records one successful model build and keeps the serialised
// model so the latest one can be served again after a restart.
type TrainingRun struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	Version         int64     `gorm:"index" json:"version"`
	TreeCount       int       `json:"tree_count"`
	SubsampleSize   int       `json:"subsample_size"`
	MaxDepth        int       `json:"max_depth"`
	TrainingSamples int       `json:"training_samples"`
	SkippedRecords  int       `json:"skipped_records"`
	Contamination   float64   `json:"contamination"`
	Threshold       float64   `json:"threshold"`
	DurationMS      int64     `json:"duration_ms"`
	Trigger         string    `json:"trigger"`
	Model           []byte    `json:"-"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}

func (r *TrainingRun) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// NewTrainingRun captures a training result and its model.
func NewTrainingRun(res analysis.TrainingResult, m *forest.Model, trigger string, took time.Duration) (*TrainingRun, error) {
	blob, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return &TrainingRun{
		Version:         res.Version,
		TreeCount:       res.TreeCount,
		SubsampleSize:   res.SubsampleSize,
		MaxDepth:        res.MaxDepth,
		TrainingSamples: res.TrainingSamples,
		SkippedRecords:  res.SkippedRecords,
		Contamination:   res.Contamination,
		Threshold:       res.Threshold,
		DurationMS:      took.Milliseconds(),
		Trigger:         trigger,
		Model:           blob,
	}, nil
}

// DecodeModel restores the stored model. The result is validated before use.
func (r TrainingRun) DecodeModel() (*forest.Model, error) {
	var m forest.Model
	if err := json.Unmarshal(r.Model, &m); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", r.ID, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", r.ID, err)
	}
	return &m, nil
}
