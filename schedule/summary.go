package schedule

import (
	"time"

	"github.com/xraph/vesting/types"
)

// Summary aggregates a beneficiary's schedules at one instant.
type Summary struct {
	Beneficiary       string       `json:"beneficiary"`
	Schedules         int          `json:"schedules"`
	TotalAmount       types.Amount `json:"total_amount"`
	ImmediateReleased types.Amount `json:"immediate_released"`
	TotalVested       types.Amount `json:"total_vested"`
	Claimed           types.Amount `json:"claimed"`
	Claimable         types.Amount `json:"claimable"`
	Locked            types.Amount `json:"locked"`
	NextCliff         *time.Time   `json:"next_cliff,omitempty"`
	At                time.Time    `json:"at"`
}

// Summarize folds schedules into a Summary evaluated at now.
func Summarize(beneficiary string, schedules []*Schedule, now time.Time) *Summary {
	sum := &Summary{Beneficiary: beneficiary, Schedules: len(schedules), At: now}

	for _, s := range schedules {
		sum.TotalAmount = sum.TotalAmount.Add(s.TotalAmount)
		sum.ImmediateReleased = sum.ImmediateReleased.Add(s.ImmediateReleaseAmount())
		sum.TotalVested = sum.TotalVested.Add(s.TotalVested(now))
		sum.Claimed = sum.Claimed.Add(s.ClaimedAmount)
		sum.Claimable = sum.Claimable.Add(s.Claimable(now))
		sum.Locked = sum.Locked.Add(s.Locked(now))

		if !s.CliffReached(now) {
			cliff := s.CliffTime()
			if sum.NextCliff == nil || cliff.Before(*sum.NextCliff) {
				sum.NextCliff = &cliff
			}
		}
	}

	return sum
}

// TotalClaimable sums Claimable(now) over schedules.
func TotalClaimable(schedules []*Schedule, now time.Time) types.Amount {
	total := types.Zero()
	for _, s := range schedules {
		total = total.Add(s.Claimable(now))
	}
	return total
}
