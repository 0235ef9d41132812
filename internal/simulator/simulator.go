// Package simulator generates synthetic cloud activity for demos, seeding and
// tests. Output is deterministic for a given seed and clock.
package simulator

import (
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/Wikid82/threatlens/internal/activity"
)

// NormalLocations are the regions regular users log in from.
var NormalLocations = []string{"US-East", "US-West", "EU-West", "EU-Central", "Asia-Pacific"}

const (
	userCount      = 500
	attackTargets  = 50
	historyWindow  = 7 * 24 * time.Hour
	attackWindow   = time.Hour
	DefaultNormal  = 1000
	DefaultAnomaly = 50
	DefaultAttack  = 20
)

// Kind tags the generator behind an anomalous record.
type Kind string

const (
	KindNormal              Kind = "normal"
	KindUnusualLocation     Kind = "unusual_location"
	KindFailedLogins        Kind = "failed_logins"
	KindPrivilegeEscalation Kind = "privilege_escalation"
	KindVMSpike             Kind = "vm_spike"
	KindCombined            Kind = "combined"
	KindAttack              Kind = "attack"
)

var anomalyKinds = []Kind{KindUnusualLocation, KindFailedLogins, KindPrivilegeEscalation, KindVMSpike, KindCombined}

// LabeledRecord is a generated record plus its ground truth.
type LabeledRecord struct {
	activity.Record
	Anomalous bool `json:"is_anomaly"`
	Kind      Kind `json:"kind"`
}

// Simulator is safe for concurrent use.
type Simulator struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
	users []string
	now   func() time.Time
}

// New returns a simulator seeded with seed.
func New(seed uint64) *Simulator {
	users := make([]string, userCount)
	for i := range users {
		users[i] = fmt.Sprintf("user_%04d", i+1)
	}
	return &Simulator{
		faker: gofakeit.New(seed),
		users: users,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock pins the reference time, for reproducible timestamps.
func (s *Simulator) WithClock(now func() time.Time) *Simulator {
	s.now = now
	return s
}

// Normal generates n records of everyday behaviour spread over the last week:
// known regions, at most two failed logins and two VMs, no privilege change
// and mostly read access.
func (s *Simulator) Normal(n int) []LabeledRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.now().Add(-historyWindow)
	out := make([]LabeledRecord, n)
	for i := range out {
		out[i] = LabeledRecord{
			Record: activity.Record{
				UserID:              s.user(len(s.users)),
				Timestamp:           s.within(base, historyWindow),
				LoginLocation:       s.faker.RandomString(NormalLocations),
				FailedLoginAttempts: s.faker.IntRange(0, 2),
				VMCreationCount:     s.faker.IntRange(0, 2),
				ResourceAccessLevel: s.normalAccess(),
			},
			Kind: KindNormal,
		}
		out[i].LoginTime = out[i].Timestamp.Format("15:04")
	}
	return out
}

// Anomalous generates n suspicious records, each drawn from one of the
// anomaly kinds.
func (s *Simulator) Anomalous(n int) []LabeledRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.now().Add(-historyWindow)
	out := make([]LabeledRecord, n)
	for i := range out {
		kind := anomalyKinds[s.faker.IntRange(0, len(anomalyKinds)-1)]
		r := activity.Record{
			UserID:              s.user(len(s.users)),
			Timestamp:           s.within(base, historyWindow),
			LoginLocation:       s.faker.RandomString(NormalLocations),
			FailedLoginAttempts: s.faker.IntRange(0, 3),
			VMCreationCount:     s.faker.IntRange(0, 3),
			ResourceAccessLevel: s.anyAccess(),
		}
		switch kind {
		case KindUnusualLocation:
			r.LoginLocation = s.faker.RandomString(activity.UnusualLocations)
			r.FailedLoginAttempts = s.faker.IntRange(1, 5)
			r.PrivilegeChange = s.faker.Bool()
		case KindFailedLogins:
			r.FailedLoginAttempts = s.faker.IntRange(5, 15)
		case KindPrivilegeEscalation:
			r.ResourceAccessLevel = activity.AccessAdmin
			r.VMCreationCount = s.faker.IntRange(0, 5)
			r.PrivilegeChange = true
		case KindVMSpike:
			r.VMCreationCount = s.faker.IntRange(5, 20)
		case KindCombined:
			r.LoginLocation = s.faker.RandomString(activity.UnusualLocations)
			r.FailedLoginAttempts = s.faker.IntRange(5, 15)
			r.ResourceAccessLevel = activity.AccessAdmin
			r.VMCreationCount = s.faker.IntRange(5, 15)
			r.PrivilegeChange = true
		}
		r.LoginTime = r.Timestamp.Format("15:04")
		out[i] = LabeledRecord{Record: r, Anomalous: true, Kind: kind}
	}
	return out
}

// Attack generates n high-risk records from the last hour against a small
// set of targeted accounts.
func (s *Simulator) Attack(n int) []LabeledRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]LabeledRecord, n)
	for i := range out {
		ts := now.Add(-time.Duration(s.faker.IntRange(0, int(attackWindow/time.Minute))) * time.Minute)
		out[i] = LabeledRecord{
			Record: activity.Record{
				UserID:              s.user(attackTargets),
				Timestamp:           ts,
				LoginLocation:       s.faker.RandomString(activity.UnusualLocations),
				LoginTime:           ts.Format("15:04"),
				FailedLoginAttempts: s.faker.IntRange(10, 20),
				PrivilegeChange:     true,
				VMCreationCount:     s.faker.IntRange(10, 25),
				ResourceAccessLevel: activity.AccessAdmin,
			},
			Anomalous: true,
			Kind:      KindAttack,
		}
	}
	return out
}

// Records strips the labels.
func Records(in []LabeledRecord) []activity.Record {
	out := make([]activity.Record, len(in))
	for i, l := range in {
		out[i] = l.Record
	}
	return out
}

func (s *Simulator) user(pool int) string {
	return s.users[s.faker.IntRange(0, pool-1)]
}

func (s *Simulator) within(base time.Time, span time.Duration) time.Time {
	return base.Add(time.Duration(s.faker.IntRange(0, int(span/time.Second))) * time.Second).UTC()
}

// normalAccess draws read/write/admin with 60/30/10 weights.
func (s *Simulator) normalAccess() activity.AccessLevel {
	switch p := s.faker.Float64(); {
	case p < 0.6:
		return activity.AccessRead
	case p < 0.9:
		return activity.AccessWrite
	default:
		return activity.AccessAdmin
	}
}

func (s *Simulator) anyAccess() activity.AccessLevel {
	levels := []activity.AccessLevel{activity.AccessRead, activity.AccessWrite, activity.AccessAdmin}
	return levels[s.faker.IntRange(0, len(levels)-1)]
}
