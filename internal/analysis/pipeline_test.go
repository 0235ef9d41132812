package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/threatlens/internal/activity"
	"github.com/Wikid82/threatlens/internal/features"
	"github.com/Wikid82/threatlens/internal/forest"
	"github.com/Wikid82/threatlens/internal/risk"
	"github.com/Wikid82/threatlens/internal/simulator"
)

var fixedNow = time.Date(2026, 10, 18, 12, 30, 0, 0, time.UTC)

func testPipeline() *Pipeline {
	cfg := DefaultConfig()
	cfg.Forest.TreeCount = 60
	cfg.Forest.SubsampleSize = 128
	cfg.Workers = 4
	p := New(cfg)
	p.now = func() time.Time { return fixedNow }
	return p
}

func sim() *simulator.Simulator {
	return simulator.New(7).WithClock(func() time.Time { return fixedNow })
}

func normalRecords(n int) []activity.Record {
	recs := simulator.Records(sim().Normal(n))
	activity.Enrich(recs)
	return recs
}

func trained(t *testing.T) *Pipeline {
	t.Helper()
	p := testPipeline()
	_, err := p.Train(context.Background(), normalRecords(400))
	require.NoError(t, err)
	return p
}

func TestTrain_Result(t *testing.T) {
	p := testPipeline()
	res, err := p.Train(context.Background(), normalRecords(300))
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, 60, res.TreeCount)
	assert.Equal(t, 128, res.SubsampleSize)
	assert.Equal(t, 300, res.TrainingSamples)
	assert.Equal(t, features.Names, res.Features)
	assert.Greater(t, res.Threshold, 0.0)

	got, err := p.Model()
	require.NoError(t, err)
	assert.Equal(t, res.Version, got.Version)
}

func TestTrain_SkipsInvalidRecords(t *testing.T) {
	p := testPipeline()
	recs := normalRecords(100)
	recs[3].FailedLoginAttempts = -1
	recs[9].ResourceAccessLevel = "root"

	res, err := p.Train(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 98, res.TrainingSamples)
	assert.Equal(t, 2, res.SkippedRecords)
}

func TestTrainWith_CommitFailureKeepsServedModel(t *testing.T) {
	p := trained(t)
	errCommit := errors.New("disk full")

	var seen TrainingResult
	_, err := p.TrainWith(context.Background(), normalRecords(200), func(res TrainingResult) error {
		seen = res
		return errCommit
	})
	require.ErrorIs(t, err, errCommit)
	assert.Equal(t, int64(2), seen.Version)
	assert.NotNil(t, seen.Model)

	m, err := p.Model()
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Version)
}

func TestTrain_InsufficientData(t *testing.T) {
	p := testPipeline()
	_, err := p.Train(context.Background(), normalRecords(3))
	assert.ErrorIs(t, err, forest.ErrInsufficientData)

	_, err = p.Model()
	assert.ErrorIs(t, err, forest.ErrModelNotTrained)
}

func TestAnalyze_NotTrained(t *testing.T) {
	p := testPipeline()
	res, err := p.Analyze(context.Background(), normalRecords(5))
	assert.ErrorIs(t, err, forest.ErrModelNotTrained)
	assert.Empty(t, res.Scored)
	assert.Empty(t, res.Skipped)
}

func TestAnalyze_AttackVersusNormal(t *testing.T) {
	p := trained(t)

	attack := simulator.Records(sim().Attack(10))
	activity.Enrich(attack)
	normal := normalRecords(10)

	res, err := p.Analyze(context.Background(), append(normal, attack...))
	require.NoError(t, err)
	require.Len(t, res.Scored, 20)
	assert.Empty(t, res.Skipped)

	for i, s := range res.Scored {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, int64(1), s.ModelVersion)
		assert.GreaterOrEqual(t, s.AnomalyScore, 0.0)
		assert.LessOrEqual(t, s.AnomalyScore, 1.0)
		assert.Equal(t, risk.Classify(s.RiskScore), s.RiskLevel)
	}
	var normalSum, attackSum float64
	for _, s := range res.Scored[:10] {
		normalSum += s.AnomalyScore
	}
	for _, s := range res.Scored[10:] {
		attackSum += s.AnomalyScore
		assert.Equal(t, 100.0, s.RiskScore)
		assert.Equal(t, risk.High, s.RiskLevel, "attack records are high risk")
		assert.Contains(t, s.Explanation, "privilege escalation detected")
	}
	assert.Greater(t, attackSum/10, normalSum/10)
}

func TestAnalyze_PartialFailure(t *testing.T) {
	p := trained(t)
	recs := normalRecords(5)
	recs[2].VMCreationCount = -4
	recs[4].LoginTime = "25:99"
	recs[4].Timestamp = time.Time{}

	res, err := p.Analyze(context.Background(), recs)
	require.NoError(t, err)
	require.Len(t, res.Scored, 3)
	require.Len(t, res.Skipped, 2)

	assert.Equal(t, []int{0, 1, 3}, []int{res.Scored[0].Index, res.Scored[1].Index, res.Scored[2].Index})
	assert.Equal(t, 2, res.Skipped[0].Index)
	assert.Equal(t, recs[2].UserID, res.Skipped[0].UserID)
	assert.True(t, IsInvalidRecord(res.Skipped[0].Err))
	assert.True(t, IsInvalidRecord(res.Skipped[1]))
	assert.Contains(t, res.Skipped[0].Message, "vm_creation_count")
}

func TestAnalyze_OrderPreservedAcrossWorkers(t *testing.T) {
	p := trained(t)
	recs := normalRecords(700)

	res, err := p.Analyze(context.Background(), recs)
	require.NoError(t, err)
	require.Len(t, res.Scored, len(recs))
	for i, s := range res.Scored {
		assert.Equal(t, recs[i].UserID, s.UserID)
		assert.Equal(t, i, s.Index)
	}
}

func TestAnalyze_CancelledContext(t *testing.T) {
	p := trained(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Analyze(ctx, normalRecords(10))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAnalyze_DuringRetrain(t *testing.T) {
	p := trained(t)
	recs := normalRecords(50)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.Train(context.Background(), normalRecords(400))
		assert.NoError(t, err)
	}()

	for i := 0; i < 10; i++ {
		res, err := p.Analyze(context.Background(), recs)
		require.NoError(t, err)
		version := res.Scored[0].ModelVersion
		for _, s := range res.Scored {
			assert.Equal(t, version, s.ModelVersion, "one batch is scored by one model")
		}
	}
	wg.Wait()

	m, err := p.Model()
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Version)
}

func TestClassifyAndFilterAlerts(t *testing.T) {
	scored := []ScoredRecord{
		{RiskScore: 5, Explanation: []string{}},
		{RiskScore: 30},
		{RiskScore: 30.5, Explanation: []string{"3 failed login attempts"}},
		{RiskScore: 95},
	}
	alerts := ClassifyAndFilterAlerts(scored)
	require.Len(t, alerts, 2)
	assert.Equal(t, risk.Medium, alerts[0].RiskLevel)
	assert.Equal(t, risk.High, alerts[1].RiskLevel)
	assert.Contains(t, alerts[1].Summary, "High risk")

	assert.Empty(t, ClassifyAndFilterAlerts(nil))
	assert.NotNil(t, ClassifyAndFilterAlerts(nil))
}

func TestTrend(t *testing.T) {
	p := testPipeline()
	scored := []ScoredRecord{
		{Record: activity.Record{Timestamp: fixedNow.Add(-5 * time.Minute)}, RiskScore: 80},
		{Record: activity.Record{Timestamp: fixedNow.Add(-10 * time.Minute)}, RiskScore: 10},
		{Record: activity.Record{Timestamp: fixedNow.Add(-3 * time.Hour)}, RiskScore: 40},
	}
	buckets := p.Trend(scored, 6)
	require.Len(t, buckets, 6)

	last := buckets[5]
	assert.Equal(t, fixedNow.Truncate(time.Hour), last.Start)
	assert.Equal(t, 45.0, last.AverageRisk)
	assert.Equal(t, 1, last.AlertCount)
	assert.Equal(t, 1, buckets[2].AlertCount)
}

func TestContextFactors(t *testing.T) {
	r := activity.Record{
		LoginLocation:       "Darknet",
		Timestamp:           time.Date(2026, 10, 18, 3, 12, 0, 0, time.UTC),
		ResourceAccessLevel: activity.AccessAdmin,
	}
	assert.Equal(t, []string{
		"unusual login location: Darknet",
		"login outside business hours (03:00 UTC)",
		"admin-level resource access",
	}, ContextFactors(r))

	calm := activity.Record{LoginLocation: "EU-West", LoginTime: "10:30", ResourceAccessLevel: activity.AccessRead}
	assert.Empty(t, ContextFactors(calm))
	assert.NotNil(t, ContextFactors(activity.Record{}))
}

func TestRestore_ContinuesVersions(t *testing.T) {
	src := trained(t)
	_, err := src.Train(context.Background(), normalRecords(200))
	require.NoError(t, err)
	stored, err := src.Model()
	require.NoError(t, err)
	require.Equal(t, int64(2), stored.Version)

	p := testPipeline()
	require.NoError(t, p.Restore(stored.Model))

	res, err := p.Analyze(context.Background(), normalRecords(3))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Scored[0].ModelVersion)

	next, err := p.Train(context.Background(), normalRecords(100))
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.Version)

	assert.ErrorIs(t, p.Restore(&forest.Model{}), forest.ErrInvalidModel)
}
