package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Wikid82/threatlens/internal/analysis"
	"github.com/Wikid82/threatlens/internal/config"
	"github.com/Wikid82/threatlens/internal/database"
	"github.com/Wikid82/threatlens/internal/logger"
	"github.com/Wikid82/threatlens/internal/metrics"
	"github.com/Wikid82/threatlens/internal/server"
	"github.com/Wikid82/threatlens/internal/services"
	"github.com/Wikid82/threatlens/internal/simulator"
	"github.com/Wikid82/threatlens/internal/version"
)

func main() {
	cfg, err := config.Load()
	// Logging comes up first so a config error is still recorded.
	setupLogging(cfg)
	if err != nil {
		logger.Log().WithError(err).Fatal("load config")
	}

	log := logger.Log()
	log.WithFields(logrus.Fields{
		"version":     version.Full(),
		"environment": cfg.Environment,
	}).Infof("starting %s backend", version.Name)

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	if err := services.ValidateURL(cfg.NotifyURL); err != nil {
		log.WithError(err).Fatal("notification url")
	}
	notifications := services.NewNotificationService(db, cfg.NotifyURL)

	pipeline := analysis.New(cfg.Analysis)
	sim := simulator.New(uint64(cfg.Analysis.Forest.Seed))
	svc := services.NewAnalysisService(db, pipeline, notifications, sim)

	run, err := svc.RestoreLatest()
	switch {
	case err != nil:
		log.WithError(err).Warn("could not restore the stored model; train a new one via POST /api/v1/model/train")
	case run == nil:
		log.Info("no trained model yet; generate logs and train via the API")
	default:
		log.WithField("version", run.Version).Info("serving stored model")
	}

	var scheduler *services.RetrainScheduler
	if cfg.RetrainSchedule != "" {
		scheduler, err = services.NewRetrainScheduler(svc, cfg.RetrainSchedule)
		if err != nil {
			log.WithError(err).Fatal("retrain schedule")
		}
		scheduler.Start()
	}

	srv, err := server.New(db, cfg, svc, registry)
	if err != nil {
		log.WithError(err).Fatal("build server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	notifications.Wait()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("shutdown complete")
}

// setupLogging tees log output to stdout and a rotated file under LogDir.
func setupLogging(cfg config.Config) {
	logDir := cfg.LogDir
	if logDir == "" {
		logDir = "data/logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		logger.Init(cfg.Debug, os.Stdout)
		logger.Log().WithError(err).Warn("log directory unavailable, logging to stdout only")
		return
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "threatlens.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.Init(cfg.Debug, io.MultiWriter(os.Stdout, rotator))
	logger.SetLevel(cfg.LogLevel)
}
