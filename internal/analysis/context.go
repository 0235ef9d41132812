package analysis

import (
	"fmt"

	"github.com/Wikid82/threatlens/internal/activity"
)

// Business hours are [06:00, 22:00] UTC inclusive.
const (
	businessHourStart = 6
	businessHourEnd   = 22
)

// ContextFactors lists observations about a record that help an analyst
// triage an alert. They never influence the risk score.
func ContextFactors(r activity.Record) []string {
	factors := []string{}
	if r.UnusualLocationFlag || activity.IsUnusualLocation(r.LoginLocation) {
		factors = append(factors, fmt.Sprintf("unusual login location: %s", r.LoginLocation))
	}
	if hour, err := r.LoginHour(); err == nil && (r.LoginTime != "" || !r.Timestamp.IsZero()) {
		if hour < businessHourStart || hour > businessHourEnd {
			factors = append(factors, fmt.Sprintf("login outside business hours (%02d:00 UTC)", hour))
		}
	}
	if ord, err := r.ResourceAccessLevel.Ordinal(); err == nil && r.ResourceAccessLevel != "" && ord == len(activity.AccessLevels)-1 {
		factors = append(factors, "admin-level resource access")
	}
	return factors
}
