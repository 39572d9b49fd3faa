// Package funding describes the solvency of the pool that backs all
// vesting schedules.
package funding

import (
	"time"

	"github.com/xraph/vesting/types"
)

// Report compares what the pool holds with what it still owes.
type Report struct {
	Pool          string       `json:"pool"`
	Balance       types.Amount `json:"balance"`
	Obligations   types.Amount `json:"obligations"`
	Beneficiaries int          `json:"beneficiaries"`
	Schedules     int          `json:"schedules"`
	CheckedAt     time.Time    `json:"checked_at"`
}

// Shortfall is how much the pool is missing, or zero when it is solvent.
func (r *Report) Shortfall() types.Amount {
	gap := r.Obligations.Sub(r.Balance)
	if gap.IsNegative() {
		return types.Zero()
	}
	return gap
}

// Solvent reports whether the pool covers every outstanding obligation.
func (r *Report) Solvent() bool {
	return !r.Balance.LessThan(r.Obligations)
}
