package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Wikid82/threatlens/internal/analysis"
	"github.com/Wikid82/threatlens/internal/database"
	"github.com/Wikid82/threatlens/internal/simulator"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestPipeline() *analysis.Pipeline {
	cfg := analysis.DefaultConfig()
	cfg.Forest.TreeCount = 40
	cfg.Forest.SubsampleSize = 64
	cfg.Workers = 2
	return analysis.New(cfg)
}

type sentMessage struct {
	url, body string
}

func newTestAnalysisService(t *testing.T) (*AnalysisService, chan sentMessage) {
	t.Helper()
	db := newTestDB(t)
	sent := make(chan sentMessage, 16)
	ns := NewNotificationService(db, "generic://example.test/hook")
	ns.send = func(url, body string) error {
		sent <- sentMessage{url, body}
		return nil
	}
	sim := simulator.New(11).WithClock(func() time.Time { return time.Now().UTC() })
	return NewAnalysisService(db, newTestPipeline(), ns, sim), sent
}
