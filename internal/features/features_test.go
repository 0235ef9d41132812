package features

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/threatlens/internal/activity"
)

func TestExtract_Order(t *testing.T) {
	rec := activity.Record{
		UserID:              "user_0042",
		Timestamp:           time.Date(2026, 5, 2, 13, 30, 0, 0, time.UTC),
		LoginLocation:       "EU-West",
		FailedLoginAttempts: 2,
		PrivilegeChange:     true,
		VMCreationCount:     4,
		ResourceAccessLevel: activity.AccessWrite,
		UnusualLocationFlag: true,
		AccessSpikeScore:    3.4,
		LoginFrequency:      12,
	}

	v, err := Extract(rec)
	require.NoError(t, err)
	assert.Len(t, v, Width)
	assert.Equal(t, Vector{13, 2, 1, 4, 2, 1, 3.4, 12}, v)
}

func TestExtract_DefaultsOnMissing(t *testing.T) {
	// A record decoded from a payload that carries only the user id.
	var rec activity.Record
	require.NoError(t, json.Unmarshal([]byte(`{"user_id":"user_0001"}`), &rec))

	v, err := Extract(rec)
	require.NoError(t, err)
	assert.Equal(t, Vector{0, 0, 0, 0, 0, 0, 0, 0}, v)
}

func TestExtract_LoginTimeFallback(t *testing.T) {
	v, err := Extract(activity.Record{LoginTime: "23:59"})
	require.NoError(t, err)
	assert.Equal(t, 23.0, v[0])
}

func TestExtract_LocationIdentityIgnored(t *testing.T) {
	a, err := Extract(activity.Record{LoginLocation: "US-East"})
	require.NoError(t, err)
	b, err := Extract(activity.Record{LoginLocation: "Asia-Pacific"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExtract_Invalid(t *testing.T) {
	_, err := Extract(activity.Record{ResourceAccessLevel: "owner"})
	var invalid *activity.InvalidRecordError
	assert.True(t, errors.As(err, &invalid))

	_, err = ExtractAll([]activity.Record{{}, {VMCreationCount: -1}})
	assert.True(t, errors.As(err, &invalid))
}

func TestExtract_Deterministic(t *testing.T) {
	rec := activity.Record{FailedLoginAttempts: 3, AccessSpikeScore: 0.9}
	a, _ := Extract(rec)
	b, _ := Extract(rec)
	assert.Equal(t, a, b)
}
