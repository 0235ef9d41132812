// Package features encodes activity records as fixed-order numeric vectors.
package features

import (
	"github.com/Wikid82/threatlens/internal/activity"
)

// Names is the feature order shared by training and scoring. Changing it
// invalidates every trained model.
var Names = []string{
	"login_hour",
	"failed_login_attempts",
	"privilege_change",
	"vm_creation_count",
	"resource_access_level",
	"unusual_location_flag",
	"access_spike_score",
	"login_frequency",
}

// Width is the length of every Vector.
var Width = len(Names)

// Vector is the numeric encoding of a record, ordered as Names.
type Vector []float64

// Extract encodes a record. Absent numerics are 0, absent booleans false, an
// absent access level is none and an absent hour falls back to login_time or
// 0. The login location itself is not encoded; its signal reaches the model
// through unusual_location_flag so the width stays fixed.
func Extract(r activity.Record) (Vector, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	hour, _ := r.LoginHour()
	access, _ := r.ResourceAccessLevel.Ordinal()

	return Vector{
		float64(hour),
		float64(r.FailedLoginAttempts),
		boolToFloat(r.PrivilegeChange),
		float64(r.VMCreationCount),
		float64(access),
		boolToFloat(r.UnusualLocationFlag),
		r.AccessSpikeScore,
		r.LoginFrequency,
	}, nil
}

// ExtractAll encodes a batch, stopping at the first invalid record.
func ExtractAll(records []activity.Record) ([]Vector, error) {
	out := make([]Vector, 0, len(records))
	for _, r := range records {
		v, err := Extract(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
