package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Wikid82/threatlens/internal/analysis"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	LogDir       string
	LogLevel     string
	Debug        bool

	Analysis analysis.Config

	// RetrainSchedule is a cron spec; empty disables scheduled retraining.
	RetrainSchedule string
	// NotifyURL is a shoutrrr service URL for high-risk alerts.
	NotifyURL string
	// AdminToken guards destructive endpoints; empty disables them.
	AdminToken string
}

// Load reads an optional .env file and the environment, falling back to
// defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit .env path. Variables already present in
// the environment win over the file.
func LoadFile(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Config{
		Environment:     getEnv("THREATLENS_ENV", "development"),
		HTTPPort:        getEnv("THREATLENS_HTTP_PORT", "8080"),
		DatabasePath:    getEnv("THREATLENS_DB_PATH", filepath.Join("data", "threatlens.db")),
		LogDir:          getEnv("THREATLENS_LOG_DIR", filepath.Join("data", "logs")),
		LogLevel:        getEnv("THREATLENS_LOG_LEVEL", ""),
		RetrainSchedule: getEnv("THREATLENS_RETRAIN_SCHEDULE", ""),
		NotifyURL:       getEnv("THREATLENS_NOTIFY_URL", ""),
		AdminToken:      getEnv("THREATLENS_ADMIN_TOKEN", ""),
		Analysis:        analysis.DefaultConfig(),
	}

	p := parser{}
	cfg.Debug = p.boolean("THREATLENS_DEBUG", false)

	f := &cfg.Analysis.Forest
	f.TreeCount = p.integer("THREATLENS_TREES", f.TreeCount)
	f.SubsampleSize = p.integer("THREATLENS_SUBSAMPLE", f.SubsampleSize)
	f.MinSamples = p.integer("THREATLENS_MIN_SAMPLES", f.MinSamples)
	f.Contamination = p.float("THREATLENS_CONTAMINATION", f.Contamination)
	f.Seed = int64(p.integer("THREATLENS_SEED", int(f.Seed)))

	th := &cfg.Analysis.Thresholds
	th.AnomalyScore = p.float("THREATLENS_ANOMALY_THRESHOLD", th.AnomalyScore)
	th.VMCreationCount = p.integer("THREATLENS_VM_THRESHOLD", th.VMCreationCount)

	cfg.Analysis.Workers = p.integer("THREATLENS_WORKERS", 0)

	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c Config) validate() error {
	f := c.Analysis.Forest
	switch {
	case f.TreeCount < 1:
		return fmt.Errorf("THREATLENS_TREES must be at least 1, got %d", f.TreeCount)
	case f.SubsampleSize < 2:
		return fmt.Errorf("THREATLENS_SUBSAMPLE must be at least 2, got %d", f.SubsampleSize)
	case f.Contamination <= 0 || f.Contamination >= 0.5:
		return fmt.Errorf("THREATLENS_CONTAMINATION must be in (0, 0.5), got %v", f.Contamination)
	case c.Analysis.Workers < 0:
		return fmt.Errorf("THREATLENS_WORKERS must not be negative, got %d", c.Analysis.Workers)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

// parser records the first malformed variable so Load can report it once.
type parser struct {
	err error
}

func (p *parser) integer(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return fallback
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
		return fallback
	}
	return v
}

func (p *parser) boolean(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return fallback
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
		return fallback
	}
	return v
}
