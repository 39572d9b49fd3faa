package schedule

import (
	"time"

	"github.com/xraph/vesting/types"
)

// ImmediateReleaseAmount is the part of the principal paid out when the
// schedule is created: floor(total * percent / 100).
func (s *Schedule) ImmediateReleaseAmount() types.Amount {
	return s.TotalAmount.Percent(s.ImmediateReleasePercent)
}

// RemainingPrincipal is the principal that vests over the ramp.
func (s *Schedule) RemainingPrincipal() types.Amount {
	return s.TotalAmount.Sub(s.ImmediateReleaseAmount())
}

// RampWindow is cliff + vesting, the time base of the linear ramp.
func (s *Schedule) RampWindow() time.Duration {
	return s.CliffDuration + s.VestingDuration
}

// ElapsedSinceUnlock is the time since the lock ended, or zero while the
// schedule is still locked. Instants before StartTime count as zero.
func (s *Schedule) ElapsedSinceUnlock(now time.Time) time.Duration {
	elapsed := now.Sub(s.StartTime)
	if elapsed <= s.LockDuration {
		return 0
	}
	return elapsed - s.LockDuration
}

// VestedPrincipal is the ramp principal accrued at now, floor-rounded.
//
// The ramp runs over the whole cliff + vesting window, so the amount that
// accrued during the cliff becomes claimable in one step once the cliff
// passes. With an empty ramp window the remaining principal vests the
// moment the lock has elapsed.
func (s *Schedule) VestedPrincipal(now time.Time) types.Amount {
	elapsed := s.ElapsedSinceUnlock(now)
	if elapsed == 0 {
		return types.Zero()
	}

	remaining := s.RemainingPrincipal()
	window := s.RampWindow()
	if window == 0 || elapsed >= window {
		return remaining
	}

	return remaining.MulDiv(int64(elapsed), int64(window)).Min(remaining)
}

// TotalVested is everything the beneficiary has ever been entitled to
// from this schedule at now: the immediate release plus vested principal.
// It is not the claimable amount.
func (s *Schedule) TotalVested(now time.Time) types.Amount {
	return s.ImmediateReleaseAmount().Add(s.VestedPrincipal(now))
}

// CliffReached reports whether ramp principal can be withdrawn at now.
// That is the case once ElapsedSinceUnlock(now) >= CliffDuration, and a
// schedule that is still locked never counts as past its cliff.
func (s *Schedule) CliffReached(now time.Time) bool {
	return !now.Before(s.CliffTime())
}

// Claimable is the vested principal not yet claimed, or zero before the
// cliff has passed. The immediate release is never part of it.
func (s *Schedule) Claimable(now time.Time) types.Amount {
	if !s.CliffReached(now) {
		return types.Zero()
	}

	claimable := s.VestedPrincipal(now).Sub(s.ClaimedAmount)
	if claimable.IsNegative() {
		return types.Zero()
	}
	return claimable
}

// Locked is the part of the total that has not vested yet at now.
func (s *Schedule) Locked(now time.Time) types.Amount {
	return s.TotalAmount.Sub(s.TotalVested(now))
}

// FullyClaimed reports whether every ramp token has been paid out.
func (s *Schedule) FullyClaimed() bool {
	return !s.ClaimedAmount.LessThan(s.RemainingPrincipal())
}

// Outstanding is what the funding pool still owes for this schedule:
// the remaining principal minus what has been claimed.
func (s *Schedule) Outstanding() types.Amount {
	return s.RemainingPrincipal().Sub(s.ClaimedAmount)
}
