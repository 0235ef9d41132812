// Package trend reduces a stream of scored records into hourly risk buckets.
package trend

import (
	"math"
	"time"
)

const (
	DefaultWindowHours = 24
	MaxWindowHours     = 24 * 30
)

// Sample is the part of a scored record the aggregator needs.
type Sample struct {
	Timestamp time.Time
	RiskScore float64
	Alert     bool
}

// Bucket summarises one hour of the window.
type Bucket struct {
	Start       time.Time `json:"timestamp"`
	AverageRisk float64   `json:"average_risk"`
	AlertCount  int       `json:"alert_count"`
	RecordCount int       `json:"record_count"`
}

// NormalizeWindow applies the default to non-positive windows and caps large
// ones.
func NormalizeWindow(hours int) int {
	if hours <= 0 {
		return DefaultWindowHours
	}
	if hours > MaxWindowHours {
		return MaxWindowHours
	}
	return hours
}

// Aggregate buckets samples into the trailing windowHours hours ending with
// the hour that contains now. Every hour of the window is reported, empty
// ones with zero average. Samples outside the window are ignored. The result
// is recomputed from scratch on every call.
func Aggregate(samples []Sample, windowHours int, now time.Time) []Bucket {
	windowHours = NormalizeWindow(windowHours)
	last := now.UTC().Truncate(time.Hour)
	first := last.Add(-time.Duration(windowHours-1) * time.Hour)
	end := last.Add(time.Hour)

	buckets := make([]Bucket, windowHours)
	sums := make([]float64, windowHours)
	for i := range buckets {
		buckets[i].Start = first.Add(time.Duration(i) * time.Hour)
	}

	for _, s := range samples {
		ts := s.Timestamp.UTC()
		if ts.Before(first) || !ts.Before(end) {
			continue
		}
		i := int(ts.Sub(first) / time.Hour)
		buckets[i].RecordCount++
		sums[i] += s.RiskScore
		if s.Alert {
			buckets[i].AlertCount++
		}
	}

	for i := range buckets {
		if buckets[i].RecordCount > 0 {
			buckets[i].AverageRisk = round2(sums[i] / float64(buckets[i].RecordCount))
		}
	}
	return buckets
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
