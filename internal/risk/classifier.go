package risk

import (
	"fmt"
	"strings"
)

// Level is the discrete severity of a risk score.
type Level string

const (
	Low    Level = "Low"
	Medium Level = "Medium"
	High   Level = "High"
)

// Band upper bounds; a score equal to a bound belongs to the lower band.
const (
	LowUpperBound    = 30.0
	MediumUpperBound = 70.0
)

// Classify maps a risk score to its level: Low for [0,30], Medium for
// (30,70] and High above.
func Classify(score float64) Level {
	switch {
	case score <= LowUpperBound:
		return Low
	case score <= MediumUpperBound:
		return Medium
	default:
		return High
	}
}

// IsAlert reports whether a level is alert-worthy.
func (l Level) IsAlert() bool {
	return l == Medium || l == High
}

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	for _, l := range []Level{Low, Medium, High} {
		if strings.EqualFold(strings.TrimSpace(s), string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("invalid risk level %q: must be Low, Medium or High", s)
}

// Summary renders a one-line description of a level and score.
func Summary(l Level, score float64) string {
	switch l {
	case Low:
		return fmt.Sprintf("Low risk (score %.1f/100): activity within normal parameters", score)
	case Medium:
		return fmt.Sprintf("Medium risk (score %.1f/100): suspicious behaviour, monitor closely", score)
	case High:
		return fmt.Sprintf("High risk (score %.1f/100): critical threat, immediate action required", score)
	}
	return fmt.Sprintf("Risk score %.1f/100", score)
}
