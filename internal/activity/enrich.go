package activity

import "strings"

// UnusualLocations are login locations treated as suspicious on sight.
var UnusualLocations = []string{"Unknown", "Tor-Exit-Node", "Darknet", "Suspicious-IP", "Blacklisted-Region"}

// IsUnusualLocation reports whether loc is one of UnusualLocations.
func IsUnusualLocation(loc string) bool {
	for _, u := range UnusualLocations {
		if strings.EqualFold(strings.TrimSpace(loc), u) {
			return true
		}
	}
	return false
}

// SpikeScore is the access spike heuristic used when the upstream collector
// did not supply one.
func SpikeScore(failedLogins, vmCreations int) float64 {
	return float64(failedLogins)*0.3 + float64(vmCreations)*0.7
}

// Enrich fills the derived fields of a batch in place. Values already set by
// the collector are kept; the unusual location flag is only ever raised.
// login_frequency is the number of records the user has in the batch.
func Enrich(records []Record) {
	perUser := make(map[string]int, len(records))
	for _, r := range records {
		perUser[r.UserID]++
	}

	for i := range records {
		r := &records[i]
		if IsUnusualLocation(r.LoginLocation) {
			r.UnusualLocationFlag = true
		}
		if r.LoginFrequency == 0 {
			r.LoginFrequency = float64(perUser[r.UserID])
		}
		if r.AccessSpikeScore == 0 && r.FailedLoginAttempts >= 0 && r.VMCreationCount >= 0 {
			r.AccessSpikeScore = SpikeScore(r.FailedLoginAttempts, r.VMCreationCount)
		}
		if r.LoginTime == "" && !r.Timestamp.IsZero() {
			r.LoginTime = r.Timestamp.UTC().Format("15:04")
		}
	}
}
