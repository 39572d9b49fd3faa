// Package claim describes the outcome of a successful claim.
package claim

import (
	"time"

	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

// Receipt records one claim: the aggregate payout and how it splits across
// the beneficiary's schedules.
type Receipt struct {
	ID          id.ClaimID      `json:"id"`
	Beneficiary string          `json:"beneficiary"`
	Amount      types.Amount    `json:"amount"`
	Transfer    *token.Transfer `json:"transfer"`
	Portions    []Portion       `json:"portions"`
	At          time.Time       `json:"at"`
}

// Portion is the share of a claim paid out of one schedule.
type Portion struct {
	ScheduleID    id.ScheduleID `json:"schedule_id"`
	Index         int           `json:"index"`
	Amount        types.Amount  `json:"amount"`
	ClaimedBefore types.Amount  `json:"claimed_before"`
	ClaimedAfter  types.Amount  `json:"claimed_after"`
}

// ScheduleIDs lists the schedules that contributed to the claim.
func (r *Receipt) ScheduleIDs() []id.ScheduleID {
	ids := make([]id.ScheduleID, 0, len(r.Portions))
	for _, p := range r.Portions {
		ids = append(ids, p.ScheduleID)
	}
	return ids
}
