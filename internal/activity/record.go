// Package activity holds the cloud-user activity record consumed by the
// scoring pipeline, its validation rules and upstream enrichment.
package activity

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// AccessLevel is the ordered resource access level of an activity.
type AccessLevel string

const (
	AccessNone  AccessLevel = "none"
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
	AccessAdmin AccessLevel = "admin"
)

// AccessLevels lists the closed enumeration in ascending order.
var AccessLevels = []AccessLevel{AccessNone, AccessRead, AccessWrite, AccessAdmin}

// Ordinal returns the position of the level in AccessLevels. An empty level
// is treated as AccessNone.
func (l AccessLevel) Ordinal() (int, error) {
	if l == "" {
		return 0, nil
	}
	for i, known := range AccessLevels {
		if strings.EqualFold(string(l), string(known)) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown access level %q", string(l))
}

// Record is one observed user action or session.
type Record struct {
	UserID              string      `json:"user_id"`
	Timestamp           time.Time   `json:"timestamp"`
	LoginLocation       string      `json:"login_location"`
	LoginTime           string      `json:"login_time,omitempty"` // HH:MM
	FailedLoginAttempts int         `json:"failed_login_attempts"`
	PrivilegeChange     bool        `json:"privilege_change"`
	VMCreationCount     int         `json:"vm_creation_count"`
	ResourceAccessLevel AccessLevel `json:"resource_access_level"`
	UnusualLocationFlag bool        `json:"unusual_location_flag"`
	AccessSpikeScore    float64     `json:"access_spike_score"`
	LoginFrequency      float64     `json:"login_frequency"`
}

// InvalidRecordError reports a record that cannot be turned into features.
type InvalidRecordError struct {
	Field  string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &InvalidRecordError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// LoginHour derives the hour of the login. The timestamp wins when present,
// otherwise login_time is parsed; a record with neither defaults to 0.
func (r Record) LoginHour() (int, error) {
	if !r.Timestamp.IsZero() {
		return r.Timestamp.UTC().Hour(), nil
	}
	if r.LoginTime == "" {
		return 0, nil
	}
	return parseLoginHour(r.LoginTime)
}

func parseLoginHour(s string) (int, error) {
	hh, _, found := strings.Cut(s, ":")
	if !found {
		return 0, invalid("login_time", "expected HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, invalid("login_time", "hour out of range in %q", s)
	}
	return hour, nil
}

// Validate checks the record invariants: non-negative numerics, a known
// access level and a derivable login hour.
func (r Record) Validate() error {
	if r.FailedLoginAttempts < 0 {
		return invalid("failed_login_attempts", "must be non-negative, got %d", r.FailedLoginAttempts)
	}
	if r.VMCreationCount < 0 {
		return invalid("vm_creation_count", "must be non-negative, got %d", r.VMCreationCount)
	}
	if r.AccessSpikeScore < 0 || math.IsNaN(r.AccessSpikeScore) || math.IsInf(r.AccessSpikeScore, 0) {
		return invalid("access_spike_score", "must be a non-negative number, got %v", r.AccessSpikeScore)
	}
	if r.LoginFrequency < 0 || math.IsNaN(r.LoginFrequency) || math.IsInf(r.LoginFrequency, 0) {
		return invalid("login_frequency", "must be a non-negative number, got %v", r.LoginFrequency)
	}
	if _, err := r.ResourceAccessLevel.Ordinal(); err != nil {
		return invalid("resource_access_level", "%v", err)
	}
	if _, err := r.LoginHour(); err != nil {
		return err
	}
	return nil
}
