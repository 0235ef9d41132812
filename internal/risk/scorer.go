// Package risk fuses the anomaly score with rule-based heuristics into a
// bounded risk score, explains it and classifies it.
package risk

import (
	"fmt"
	"math"
)

// MaxScore is the upper bound of a risk score.
const MaxScore = 100.0

// Input carries the signals the scorer reads from a scored record.
type Input struct {
	AnomalyScore        float64
	FailedLoginAttempts int
	PrivilegeChange     bool
	VMCreationCount     int
}

// Thresholds control when a rule is reported in the explanation. They do not
// change the score.
type Thresholds struct {
	AnomalyScore    float64
	VMCreationCount int
}

// DefaultThresholds returns the explanation triggers used out of the box.
func DefaultThresholds() Thresholds {
	return Thresholds{AnomalyScore: 0.5, VMCreationCount: 3}
}

// Rule is one row of the scoring table: the rule adds Weight*Value(in) to the
// raw score and, when Triggered, contributes Explain(in) to the rationale.
type Rule struct {
	Name      string
	Weight    float64
	Value     func(Input) float64
	Triggered func(Input, Thresholds) bool
	Explain   func(Input) string
}

// DefaultRules is the scoring table in explanation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:   "anomaly_score",
			Weight: 50,
			Value:  func(in Input) float64 { return in.AnomalyScore },
			Triggered: func(in Input, th Thresholds) bool {
				return in.AnomalyScore > th.AnomalyScore
			},
			Explain: func(Input) string { return "elevated anomaly score" },
		},
		{
			Name:   "failed_login_attempts",
			Weight: 5,
			Value:  func(in Input) float64 { return float64(in.FailedLoginAttempts) },
			Triggered: func(in Input, _ Thresholds) bool {
				return in.FailedLoginAttempts > 0
			},
			Explain: func(in Input) string {
				return fmt.Sprintf("%d failed login attempts", in.FailedLoginAttempts)
			},
		},
		{
			Name:   "privilege_change",
			Weight: 20,
			Value: func(in Input) float64 {
				if in.PrivilegeChange {
					return 1
				}
				return 0
			},
			Triggered: func(in Input, _ Thresholds) bool { return in.PrivilegeChange },
			Explain:   func(Input) string { return "privilege escalation detected" },
		},
		{
			Name:   "vm_creation_count",
			Weight: 5,
			Value:  func(in Input) float64 { return float64(in.VMCreationCount) },
			Triggered: func(in Input, th Thresholds) bool {
				return in.VMCreationCount >= th.VMCreationCount
			},
			Explain: func(in Input) string {
				return fmt.Sprintf("excessive VM creation (%d)", in.VMCreationCount)
			},
		},
	}
}

// Scorer applies a rule table. It holds no state beyond its configuration
// and is safe for concurrent use.
type Scorer struct {
	rules      []Rule
	thresholds Thresholds
}

// NewScorer returns a scorer over the default table.
func NewScorer(th Thresholds) *Scorer {
	return NewScorerWithRules(DefaultRules(), th)
}

// NewScorerWithRules returns a scorer over a custom table.
func NewScorerWithRules(rules []Rule, th Thresholds) *Scorer {
	return &Scorer{rules: rules, thresholds: th}
}

// Thresholds returns the explanation triggers.
func (s *Scorer) Thresholds() Thresholds {
	return s.thresholds
}

// Score returns the clamped risk score.
func (s *Scorer) Score(in Input) float64 {
	var raw float64
	for _, r := range s.rules {
		raw += r.Weight * r.Value(in)
	}
	return Clamp(raw)
}

// Explain lists the triggered rules in table order.
func (s *Scorer) Explain(in Input) []string {
	out := []string{}
	for _, r := range s.rules {
		if r.Triggered != nil && r.Triggered(in, s.thresholds) {
			out = append(out, r.Explain(in))
		}
	}
	return out
}

// Clamp saturates a raw score into [0, MaxScore].
func Clamp(raw float64) float64 {
	if math.IsNaN(raw) || raw < 0 {
		return 0
	}
	if raw > MaxScore {
		return MaxScore
	}
	return raw
}
