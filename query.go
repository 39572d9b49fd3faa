package vesting

import (
	"context"
	"time"

	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

// GetSchedule returns the beneficiary's schedule at index. Indexes start at
// zero and follow creation order.
func (v *Vesting) GetSchedule(ctx context.Context, beneficiary string, index int) (*schedule.Schedule, error) {
	if index < 0 {
		return nil, ErrScheduleNotFound
	}
	return v.store.GetSchedule(ctx, v.canonical(beneficiary), index)
}

// ListSchedules returns all of the beneficiary's schedules ordered by index.
// An unknown beneficiary has no schedules.
func (v *Vesting) ListSchedules(ctx context.Context, beneficiary string) ([]*schedule.Schedule, error) {
	return v.store.ListSchedules(ctx, v.canonical(beneficiary))
}

// ScheduleCount returns how many schedules the beneficiary has.
func (v *Vesting) ScheduleCount(ctx context.Context, beneficiary string) (int, error) {
	return v.store.CountSchedules(ctx, v.canonical(beneficiary))
}

// GetClaimable returns what Claim would pay the beneficiary right now.
func (v *Vesting) GetClaimable(ctx context.Context, beneficiary string) (types.Amount, error) {
	return v.ClaimableAt(ctx, beneficiary, v.Now())
}

// ClaimableAt returns what the beneficiary could claim at instant at, given
// what has been claimed so far.
func (v *Vesting) ClaimableAt(ctx context.Context, beneficiary string, at time.Time) (types.Amount, error) {
	schedules, err := v.ListSchedules(ctx, beneficiary)
	if err != nil {
		return types.Zero(), err
	}
	return schedule.TotalClaimable(schedules, at), nil
}

// Summary aggregates the beneficiary's schedules at the current instant.
func (v *Vesting) Summary(ctx context.Context, beneficiary string) (*schedule.Summary, error) {
	beneficiary = v.canonical(beneficiary)
	schedules, err := v.store.ListSchedules(ctx, beneficiary)
	if err != nil {
		return nil, err
	}
	return schedule.Summarize(beneficiary, schedules, v.Now()), nil
}

// BalanceOf returns the token balance held by account.
func (v *Vesting) BalanceOf(ctx context.Context, account string) (types.Amount, error) {
	return v.store.BalanceOf(ctx, v.canonical(account))
}

// Transfers lists token movements into or out of account, newest first.
// An empty account lists every movement.
func (v *Vesting) Transfers(ctx context.Context, account string, opts token.ListOpts) ([]*token.Transfer, error) {
	if account != "" {
		account = v.canonical(account)
	}
	return v.store.ListTransfers(ctx, account, opts)
}
