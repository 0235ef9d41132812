// Package analysis wires feature extraction, the anomaly detector, the risk
// scorer and the classifier into the train / analyze / alert / trend
// operations exposed to the rest of the backend.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Wikid82/threatlens/internal/activity"
	"github.com/Wikid82/threatlens/internal/features"
	"github.com/Wikid82/threatlens/internal/forest"
	"github.com/Wikid82/threatlens/internal/logger"
	"github.com/Wikid82/threatlens/internal/risk"
	"github.com/Wikid82/threatlens/internal/trend"
)

// Config bundles the knobs of every pipeline stage.
type Config struct {
	Forest     forest.Config
	Thresholds risk.Thresholds
	// Workers bounds batch analysis fan-out; 0 means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns the out-of-the-box pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Forest:     forest.DefaultConfig(),
		Thresholds: risk.DefaultThresholds(),
	}
}

// ScoredRecord is an activity record annotated by one scoring pass.
type ScoredRecord struct {
	activity.Record
	Index        int        `json:"index"`
	AnomalyScore float64    `json:"anomaly_score"`
	Anomalous    bool       `json:"anomalous"`
	RiskScore    float64    `json:"risk_score"`
	RiskLevel    risk.Level `json:"risk_level"`
	Explanation  []string   `json:"explanation"`
	ModelVersion int64      `json:"model_version"`
}

// Alert is a scored record classified Medium or High.
type Alert struct {
	ScoredRecord
	Summary string   `json:"summary"`
	Context []string `json:"context"`
}

// RecordError reports a record skipped by a batch.
type RecordError struct {
	Index   int    `json:"index"`
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Index, e.Message)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// BatchResult carries the records that were scored and the ones that were
// not, so one bad record never costs the whole batch.
type BatchResult struct {
	Scored  []ScoredRecord `json:"scored"`
	Skipped []RecordError  `json:"skipped"`
}

// TrainingResult describes a freshly served model.
type TrainingResult struct {
	Version         int64     `json:"version"`
	TreeCount       int       `json:"tree_count"`
	SubsampleSize   int       `json:"subsample_size"`
	MaxDepth        int       `json:"max_depth"`
	TrainingSamples int       `json:"training_samples"`
	SkippedRecords  int       `json:"skipped_records"`
	Contamination   float64   `json:"contamination"`
	Threshold       float64   `json:"threshold"`
	Features        []string  `json:"features"`
	TrainedAt       time.Time `json:"trained_at"`

	// Model is the model the result describes, for persistence.
	Model *forest.Model `json:"-"`
}

// Pipeline is safe for concurrent use. Training calls are serialised by the
// detector; analysis reads whichever model is served when the batch starts.
type Pipeline struct {
	detector *forest.Detector
	scorer   *risk.Scorer
	workers  int
	now      func() time.Time
}

// New builds a pipeline. The forest always trains on features.Names.
func New(cfg Config) *Pipeline {
	fc := cfg.Forest
	fc.Features = features.Names
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{
		detector: forest.NewDetector(fc),
		scorer:   risk.NewScorer(cfg.Thresholds),
		workers:  workers,
		now:      time.Now,
	}
}

// Detector exposes the model holder, e.g. to restore a stored model.
func (p *Pipeline) Detector() *forest.Detector {
	return p.detector
}

// Train fits a new model on records believed normal and serves it once it is
// complete. Invalid records are left out; if too few remain the call fails
// with forest.ErrInsufficientData and the served model is unchanged.
func (p *Pipeline) Train(ctx context.Context, normal []activity.Record) (TrainingResult, error) {
	return p.TrainWith(ctx, normal, nil)
}

// TrainWith is Train with a commit step that runs after the model is built
// and before it is served. A commit error leaves the served model unchanged.
func (p *Pipeline) TrainWith(ctx context.Context, normal []activity.Record, commit func(TrainingResult) error) (TrainingResult, error) {
	start := time.Now()
	vectors := make([][]float64, 0, len(normal))
	skipped := 0
	for i, r := range normal {
		v, err := features.Extract(r)
		if err != nil {
			skipped++
			logger.Log().WithError(err).WithField("index", i).Debug("skipping invalid training record")
			continue
		}
		vectors = append(vectors, v)
	}

	var fitCommit func(*forest.Model) error
	if commit != nil {
		fitCommit = func(m *forest.Model) error {
			res := resultFor(m)
			res.SkippedRecords = skipped
			return commit(res)
		}
	}
	m, err := p.detector.FitWith(ctx, vectors, fitCommit)
	if err != nil {
		logger.Log().WithError(err).WithFields(logrus.Fields{
			"records": len(normal),
			"skipped": skipped,
		}).Warn("model training failed")
		return TrainingResult{}, fmt.Errorf("train: %w", err)
	}

	logger.Log().WithFields(logrus.Fields{
		"version":        m.Version,
		"trees":          len(m.Trees),
		"subsample_size": m.SubsampleSize,
		"samples":        m.TrainingSamples,
		"skipped":        skipped,
		"threshold":      m.Threshold,
		"duration":       time.Since(start).String(),
	}).Info("anomaly model trained")

	res := resultFor(m)
	res.SkippedRecords = skipped
	return res, nil
}

// Restore serves a previously trained model, typically one loaded from
// storage at startup. Later trainings continue its version sequence.
func (p *Pipeline) Restore(m *forest.Model) error {
	if err := p.detector.Restore(m); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	logger.Log().WithFields(logrus.Fields{
		"version": m.Version,
		"trees":   len(m.Trees),
	}).Info("anomaly model restored")
	return nil
}

// Model returns a description of the served model.
func (p *Pipeline) Model() (TrainingResult, error) {
	m, err := p.detector.Current()
	if err != nil {
		return TrainingResult{}, err
	}
	return resultFor(m), nil
}

func resultFor(m *forest.Model) TrainingResult {
	return TrainingResult{
		Version:         m.Version,
		TreeCount:       len(m.Trees),
		SubsampleSize:   m.SubsampleSize,
		MaxDepth:        m.MaxDepth,
		TrainingSamples: m.TrainingSamples,
		Contamination:   m.Contamination,
		Threshold:       m.Threshold,
		Features:        m.Features,
		TrainedAt:       m.TrainedAt,
		Model:           m,
	}
}

// Analyze scores a batch against the served model. Without a model it fails
// with forest.ErrModelNotTrained and returns nothing. Records that cannot be
// extracted are reported in Skipped; Scored keeps input order.
func (p *Pipeline) Analyze(ctx context.Context, records []activity.Record) (BatchResult, error) {
	m, err := p.detector.Current()
	if err != nil {
		return BatchResult{}, fmt.Errorf("analyze: %w", err)
	}

	type slot struct {
		scored ScoredRecord
		err    error
	}
	slots := make([]slot, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	chunk := (len(records) + p.workers - 1) / p.workers
	if chunk < 64 {
		chunk = 64
	}
	for lo := 0; lo < len(records); lo += chunk {
		hi := min(lo+chunk, len(records))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				slots[i].scored, slots[i].err = p.score(m, records[i])
				slots[i].scored.Index = i
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, fmt.Errorf("analyze: %w", err)
	}

	res := BatchResult{
		Scored:  make([]ScoredRecord, 0, len(records)),
		Skipped: []RecordError{},
	}
	for i, s := range slots {
		if s.err != nil {
			res.Skipped = append(res.Skipped, RecordError{
				Index:   i,
				UserID:  records[i].UserID,
				Message: s.err.Error(),
				Err:     s.err,
			})
			continue
		}
		res.Scored = append(res.Scored, s.scored)
	}

	if len(res.Skipped) > 0 {
		logger.Log().WithFields(logrus.Fields{
			"records": len(records),
			"skipped": len(res.Skipped),
		}).Warn("analysis skipped invalid records")
	}
	return res, nil
}

func (p *Pipeline) score(m *forest.Model, r activity.Record) (ScoredRecord, error) {
	v, err := features.Extract(r)
	if err != nil {
		return ScoredRecord{}, err
	}
	anomaly, err := m.Score(v)
	if err != nil {
		return ScoredRecord{}, err
	}

	in := risk.Input{
		AnomalyScore:        anomaly,
		FailedLoginAttempts: r.FailedLoginAttempts,
		PrivilegeChange:     r.PrivilegeChange,
		VMCreationCount:     r.VMCreationCount,
	}
	score := p.scorer.Score(in)
	return ScoredRecord{
		Record:       r,
		AnomalyScore: anomaly,
		Anomalous:    m.IsAnomalous(anomaly),
		RiskScore:    score,
		RiskLevel:    risk.Classify(score),
		Explanation:  p.scorer.Explain(in),
		ModelVersion: m.Version,
	}, nil
}

// ClassifyAndFilterAlerts returns the alert-worthy records. The level is
// recomputed from the risk score so the classifier stays the only source of
// alerts.
func (p *Pipeline) ClassifyAndFilterAlerts(scored []ScoredRecord) []Alert {
	return ClassifyAndFilterAlerts(scored)
}

// ClassifyAndFilterAlerts is the stateless form of Pipeline.ClassifyAndFilterAlerts.
func ClassifyAndFilterAlerts(scored []ScoredRecord) []Alert {
	alerts := []Alert{}
	for _, s := range scored {
		level := risk.Classify(s.RiskScore)
		if !level.IsAlert() {
			continue
		}
		s.RiskLevel = level
		s.Explanation = append([]string(nil), s.Explanation...)
		alerts = append(alerts, Alert{
			ScoredRecord: s,
			Summary:      risk.Summary(level, s.RiskScore),
			Context:      ContextFactors(s.Record),
		})
	}
	return alerts
}

// Trend buckets scored records over the trailing window.
func (p *Pipeline) Trend(scored []ScoredRecord, windowHours int) []trend.Bucket {
	samples := make([]trend.Sample, len(scored))
	for i, s := range scored {
		samples[i] = trend.Sample{
			Timestamp: s.Timestamp,
			RiskScore: s.RiskScore,
			Alert:     risk.Classify(s.RiskScore).IsAlert(),
		}
	}
	return trend.Aggregate(samples, windowHours, p.now())
}

// IsInvalidRecord reports whether err was caused by a malformed record.
func IsInvalidRecord(err error) bool {
	var invalid *activity.InvalidRecordError
	return errors.As(err, &invalid)
}
