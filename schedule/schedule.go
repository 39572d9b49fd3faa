// Package schedule holds the vesting schedule record and its accrual math.
//
// A Schedule is immutable after creation except for ClaimedAmount, which
// only grows. Everything else in this package is a pure function of a
// schedule and an instant, so callers can evaluate accrual against any
// consistent snapshot without touching storage.
package schedule

import (
	"time"

	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/types"
)

// Schedule is one vesting grant to a beneficiary.
type Schedule struct {
	types.Entity
	ID                      id.ScheduleID     `json:"id"`
	Beneficiary             string            `json:"beneficiary"`
	Index                   int               `json:"index"`
	TotalAmount             types.Amount      `json:"total_amount"`
	ImmediateReleasePercent uint8             `json:"immediate_release_percent"`
	LockDuration            time.Duration     `json:"lock_duration"`
	CliffDuration           time.Duration     `json:"cliff_duration"`
	VestingDuration         time.Duration     `json:"vesting_duration"`
	StartTime               time.Time         `json:"start_time"`
	ClaimedAmount           types.Amount      `json:"claimed_amount"`
	Metadata                map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of s.
func (s *Schedule) Clone() *Schedule {
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// UnlockTime is the instant the lock ends and the ramp starts.
func (s *Schedule) UnlockTime() time.Time { return s.StartTime.Add(s.LockDuration) }

// CliffTime is the first instant at which ramp principal can be claimed.
func (s *Schedule) CliffTime() time.Time { return s.UnlockTime().Add(s.CliffDuration) }

// EndTime is the instant the whole principal has vested.
func (s *Schedule) EndTime() time.Time { return s.UnlockTime().Add(s.RampWindow()) }

// ListOpts pages through beneficiaries. Non-positive values are ignored.
type ListOpts struct {
	Limit  int
	Offset int
}
