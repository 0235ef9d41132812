package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("THREATLENS_DB_PATH", filepath.Join(dir, "data", "tl.db"))

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 100, cfg.Analysis.Forest.TreeCount)
	assert.Equal(t, 256, cfg.Analysis.Forest.SubsampleSize)
	assert.Equal(t, 0.5, cfg.Analysis.Thresholds.AnomalyScore)
	assert.Equal(t, 3, cfg.Analysis.Thresholds.VMCreationCount)
	assert.Empty(t, cfg.AdminToken)
	assert.False(t, cfg.IsProduction())

	_, err = os.Stat(filepath.Join(dir, "data"))
	assert.NoError(t, err, "data directory is created")
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("THREATLENS_DB_PATH", filepath.Join(dir, "tl.db"))
	t.Setenv("THREATLENS_ENV", "production")
	t.Setenv("THREATLENS_DEBUG", "true")
	t.Setenv("THREATLENS_TREES", "25")
	t.Setenv("THREATLENS_CONTAMINATION", "0.1")
	t.Setenv("THREATLENS_SEED", "7")
	t.Setenv("THREATLENS_VM_THRESHOLD", "5")
	t.Setenv("THREATLENS_WORKERS", "2")
	t.Setenv("THREATLENS_RETRAIN_SCHEDULE", "@every 1h")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.Debug)
	assert.Equal(t, 25, cfg.Analysis.Forest.TreeCount)
	assert.Equal(t, 0.1, cfg.Analysis.Forest.Contamination)
	assert.Equal(t, int64(7), cfg.Analysis.Forest.Seed)
	assert.Equal(t, 5, cfg.Analysis.Thresholds.VMCreationCount)
	assert.Equal(t, 2, cfg.Analysis.Workers)
	assert.Equal(t, "@every 1h", cfg.RetrainSchedule)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("THREATLENS_DB_PATH", filepath.Join(dir, "tl.db"))
	t.Setenv("THREATLENS_HTTP_PORT", "9000")
	// Setenv registers the restore; the variable must be absent for the file to apply.
	t.Setenv("THREATLENS_ADMIN_TOKEN", "")
	require.NoError(t, os.Unsetenv("THREATLENS_ADMIN_TOKEN"))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("THREATLENS_HTTP_PORT=7000\nTHREATLENS_ADMIN_TOKEN=s3cret\n"), 0o600))

	cfg, err := LoadFile(envFile)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.HTTPPort, "process environment wins over the file")
	assert.Equal(t, "s3cret", cfg.AdminToken)
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	t.Setenv("THREATLENS_DB_PATH", filepath.Join(t.TempDir(), "tl.db"))
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"THREATLENS_TREES", "many", "parse THREATLENS_TREES"},
		{"THREATLENS_CONTAMINATION", "abc", "parse THREATLENS_CONTAMINATION"},
		{"THREATLENS_DEBUG", "maybe", "parse THREATLENS_DEBUG"},
		{"THREATLENS_TREES", "0", "THREATLENS_TREES must be at least 1"},
		{"THREATLENS_CONTAMINATION", "0.7", "THREATLENS_CONTAMINATION must be in"},
		{"THREATLENS_WORKERS", "-1", "THREATLENS_WORKERS must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv("THREATLENS_DB_PATH", filepath.Join(t.TempDir(), "tl.db"))
			t.Setenv(tt.key, tt.value)
			_, err := LoadFile("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
