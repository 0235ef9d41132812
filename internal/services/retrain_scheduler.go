package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/threatlens/internal/forest"
	"github.com/Wikid82/threatlens/internal/logger"
	"github.com/Wikid82/threatlens/internal/models"
)

// RetrainScheduler periodically retrains the model from the store and, once
// a new model is served, scores the logs that arrived since.
type RetrainScheduler struct {
	analysis *AnalysisService
	cron     *cron.Cron
	entry    cron.EntryID
	timeout  time.Duration
}

// NewRetrainScheduler parses spec (standard five-field cron or a descriptor
// such as "@every 6h"). Overlapping runs are skipped.
func NewRetrainScheduler(analysis *AnalysisService, spec string) (*RetrainScheduler, error) {
	cronLog := cron.PrintfLogger(logger.Component("retrain"))
	s := &RetrainScheduler{
		analysis: analysis,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		timeout: 30 * time.Minute,
	}
	id, err := s.cron.AddFunc(spec, func() { _ = s.RunOnce(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("invalid retrain schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins scheduling in the background.
func (s *RetrainScheduler) Start() {
	s.cron.Start()
	logger.Component("retrain").WithField("next", s.Next()).Info("retrain scheduler started")
}

// Stop halts scheduling and waits for a running job, bounded by ctx.
func (s *RetrainScheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Next returns the next scheduled run, zero before Start.
func (s *RetrainScheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// RunOnce retrains and scores pending logs. Not having enough normal data
// yet is expected on a fresh install and only logged.
func (s *RetrainScheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	log := logger.Component("retrain")

	run, err := s.analysis.Train(ctx, models.TriggerSchedule)
	if errors.Is(err, forest.ErrInsufficientData) {
		log.WithError(err).Info("skipping scheduled retrain")
		return err
	}
	if err != nil {
		log.WithError(err).Error("scheduled retrain failed")
		return err
	}

	summary, err := s.analysis.AnalyzeStored(ctx, true)
	if err != nil && !errors.Is(err, ErrNoLogs) {
		log.WithError(err).Error("scoring pending logs failed")
		return err
	}
	log.WithFields(logrus.Fields{
		"version":  run.Version,
		"analyzed": summary.LogsAnalyzed,
		"alerts":   summary.AlertsCreated,
	}).Info("scheduled retrain completed")
	return nil
}
