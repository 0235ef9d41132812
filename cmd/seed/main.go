package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/Wikid82/threatlens/internal/analysis"
	"github.com/Wikid82/threatlens/internal/config"
	"github.com/Wikid82/threatlens/internal/database"
	"github.com/Wikid82/threatlens/internal/forest"
	"github.com/Wikid82/threatlens/internal/logger"
	"github.com/Wikid82/threatlens/internal/models"
	"github.com/Wikid82/threatlens/internal/services"
	"github.com/Wikid82/threatlens/internal/simulator"
)

func main() {
	normal := flag.Int("normal", simulator.DefaultNormal, "number of normal logs to generate")
	anomalous := flag.Int("anomalous", simulator.DefaultAnomaly, "number of anomalous logs to generate")
	attack := flag.Int("attack", 0, "number of attack logs to inject after training")
	train := flag.Bool("train", true, "train a model on the seeded logs")
	reset := flag.Bool("reset", false, "delete stored logs and notifications first")
	seed := flag.Uint64("seed", 0, "simulator seed (0 uses THREATLENS_SEED)")
	flag.Parse()

	cfg, err := config.Load()
	logger.Init(cfg.Debug, os.Stdout)
	log := logger.Component("seed")
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}
	fmt.Println("✓ Database migrated successfully")

	if *seed == 0 {
		*seed = uint64(cfg.Analysis.Forest.Seed)
	}
	svc := services.NewAnalysisService(db, analysis.New(cfg.Analysis), nil, simulator.New(*seed))

	if *reset {
		deleted, err := svc.Activity.Reset()
		if err != nil {
			log.WithError(err).Fatal("Failed to reset data")
		}
		fmt.Printf("✓ Deleted %d existing logs\n", deleted)
	}

	gen, err := svc.GenerateLogs(*normal, *anomalous)
	if err != nil {
		log.WithError(err).Fatal("Failed to generate logs")
	}
	fmt.Printf("✓ Generated %d logs (%d normal, %d anomalous)\n", gen.TotalLogs, gen.NormalLogs, gen.AnomalousLogs)

	if !*train {
		return
	}
	if _, err := svc.RestoreLatest(); err != nil {
		log.WithError(err).Warn("ignoring unreadable stored model")
	}
	ctx := context.Background()
	run, err := svc.Train(ctx, models.TriggerSeed)
	if errors.Is(err, forest.ErrInsufficientData) {
		fmt.Println("! Not enough normal logs to train a model")
		return
	}
	if err != nil {
		log.WithError(err).Fatal("Failed to train model")
	}
	fmt.Printf("✓ Trained model v%d on %d records\n", run.Version, run.TrainingSamples)

	summary, err := svc.AnalyzeStored(ctx, false)
	if err != nil {
		log.WithError(err).Fatal("Failed to analyze logs")
	}
	fmt.Printf("✓ Analyzed %d logs: %d alerts, %d high risk\n", summary.LogsAnalyzed, summary.AlertsCreated, summary.HighRisk)

	if *attack > 0 {
		summary, err := svc.SimulateAttack(ctx, *attack)
		if err != nil {
			log.WithError(err).Fatal("Failed to simulate attack")
		}
		fmt.Printf("✓ Injected %d attack logs: %d high risk\n", summary.LogsAnalyzed, summary.HighRisk)
	}
}
