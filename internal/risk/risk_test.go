package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{0, Low},
		{5, Low},
		{30, Low},
		{30.0001, Medium},
		{50, Medium},
		{70, Medium},
		{70.0001, High},
		{100, High},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.score), "score %v", tt.score)
	}
}

func TestClassify_TotalOverRange(t *testing.T) {
	for s := 0.0; s <= 100; s += 0.25 {
		l := Classify(s)
		assert.Contains(t, []Level{Low, Medium, High}, l)
		assert.Equal(t, l, Classify(s))
	}
}

func TestLevel_IsAlert(t *testing.T) {
	assert.False(t, Low.IsAlert())
	assert.True(t, Medium.IsAlert())
	assert.True(t, High.IsAlert())
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("high")
	require.NoError(t, err)
	assert.Equal(t, High, l)

	_, err = ParseLevel("critical")
	assert.Error(t, err)
}

func TestScorer_ScenarioA(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	in := Input{AnomalyScore: 0.1}

	score := s.Score(in)
	assert.InDelta(t, 5.0, score, 1e-9)
	assert.Equal(t, Low, Classify(score))
	assert.False(t, Classify(score).IsAlert())
	assert.Empty(t, s.Explain(in))
}

func TestScorer_ScenarioB(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	in := Input{AnomalyScore: 0.9, FailedLoginAttempts: 10, PrivilegeChange: true, VMCreationCount: 3}

	score := s.Score(in)
	assert.Equal(t, 100.0, score)
	assert.Equal(t, High, Classify(score))
	assert.Equal(t, []string{
		"elevated anomaly score",
		"10 failed login attempts",
		"privilege escalation detected",
		"excessive VM creation (3)",
	}, s.Explain(in))
}

func TestScorer_Formula(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	in := Input{AnomalyScore: 0.4, FailedLoginAttempts: 1, PrivilegeChange: true, VMCreationCount: 2}
	assert.InDelta(t, 20+5+20+10, s.Score(in), 1e-9)
}

func TestScorer_ClampIsExact(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	for _, in := range []Input{
		{FailedLoginAttempts: 21},
		{VMCreationCount: 1000},
		{AnomalyScore: 1, PrivilegeChange: true, FailedLoginAttempts: 7},
	} {
		assert.Equal(t, 100.0, s.Score(in))
	}
	assert.Equal(t, 0.0, Clamp(-4))
	assert.Equal(t, 100.0, Clamp(100.5))
}

func TestScorer_Monotonic(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	base := Input{AnomalyScore: 0.2, FailedLoginAttempts: 1, VMCreationCount: 1}

	prev := s.Score(base)
	for a := 0.2; a <= 1.0; a += 0.05 {
		in := base
		in.AnomalyScore = a
		cur := s.Score(in)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}

	prev = s.Score(base)
	for f := 1; f < 30; f++ {
		in := base
		in.FailedLoginAttempts = f
		cur := s.Score(in)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}

	prev = s.Score(base)
	for v := 1; v < 30; v++ {
		in := base
		in.VMCreationCount = v
		cur := s.Score(in)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}

	withPriv := base
	withPriv.PrivilegeChange = true
	assert.GreaterOrEqual(t, s.Score(withPriv), s.Score(base))
}

func TestScorer_ExplanationThresholds(t *testing.T) {
	s := NewScorer(DefaultThresholds())

	assert.Empty(t, s.Explain(Input{AnomalyScore: 0.5}), "anomaly must exceed the threshold")
	assert.Equal(t, []string{"elevated anomaly score"}, s.Explain(Input{AnomalyScore: 0.51}))
	assert.Empty(t, s.Explain(Input{VMCreationCount: 2}))
	assert.Equal(t, []string{"excessive VM creation (3)"}, s.Explain(Input{VMCreationCount: 3}))

	custom := NewScorer(Thresholds{AnomalyScore: 0.8, VMCreationCount: 10})
	assert.Empty(t, custom.Explain(Input{AnomalyScore: 0.7, VMCreationCount: 9}))
	assert.Equal(t, Thresholds{AnomalyScore: 0.8, VMCreationCount: 10}, custom.Thresholds())
}

func TestScorer_ExplanationOrderFixed(t *testing.T) {
	s := NewScorer(DefaultThresholds())
	got := s.Explain(Input{VMCreationCount: 5, PrivilegeChange: true})
	assert.Equal(t, []string{"privilege escalation detected", "excessive VM creation (5)"}, got)
}

func TestScorer_CustomRules(t *testing.T) {
	rules := append(DefaultRules(), Rule{
		Name:      "flat",
		Weight:    1,
		Value:     func(Input) float64 { return 3 },
		Triggered: func(Input, Thresholds) bool { return true },
		Explain:   func(Input) string { return "flat bonus" },
	})
	s := NewScorerWithRules(rules, DefaultThresholds())
	assert.InDelta(t, 3, s.Score(Input{}), 1e-9)
	assert.Equal(t, []string{"flat bonus"}, s.Explain(Input{}))
}

func TestSummary(t *testing.T) {
	assert.Contains(t, Summary(High, 88), "88.0/100")
	assert.Contains(t, Summary(Low, 3), "Low risk")
}
