package vesting

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/vesting/auth"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

// ──────────────────────────────────────────────────
// Schedule Creation
// ──────────────────────────────────────────────────

// AddVestingSchedule appends a schedule to the beneficiary's sequence.
//
// The caller must present an administrative credential. The schedule
// starts now with nothing claimed. If the terms carry an immediate
// release, that amount moves from the funding pool to the beneficiary in
// the same transaction that records the schedule, so neither can be
// observed without the other.
func (v *Vesting) AddVestingSchedule(ctx context.Context, cred auth.Credential, req ScheduleRequest) (*schedule.Schedule, error) {
	ident, err := v.authorize(ctx, cred, "add_vesting_schedule")
	if err != nil {
		return nil, err
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	beneficiary, err := v.addresses.Normalize(req.Beneficiary)
	if err != nil {
		return nil, ValidationError{Field: "beneficiary", Message: err.Error(), Err: ErrInvalidBeneficiary}
	}

	unlock, err := v.lockBeneficiary(ctx, beneficiary)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := v.Now()
	s := &schedule.Schedule{
		Entity:                  types.NewEntityAt(now),
		ID:                      id.NewScheduleID(),
		Beneficiary:             beneficiary,
		TotalAmount:             req.TotalAmount,
		ImmediateReleasePercent: req.ImmediateReleasePercent,
		LockDuration:            req.LockDuration,
		CliffDuration:           req.CliffDuration,
		VestingDuration:         req.VestingDuration,
		StartTime:               now,
		ClaimedAmount:           types.Zero(),
		Metadata:                req.Metadata,
	}

	var release *token.Transfer
	err = v.store.RunInTx(ctx, func(tx store.Tx) error {
		count, err := tx.CountSchedules(ctx, beneficiary)
		if err != nil {
			return fmt.Errorf("count schedules: %w", err)
		}
		s.Index = count

		if err := tx.CreateSchedule(ctx, s); err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}

		immediate := s.ImmediateReleaseAmount()
		if immediate.IsZero() {
			return nil
		}

		release = &token.Transfer{
			ID:          id.NewTransferID(),
			From:        v.fundingPool,
			To:          beneficiary,
			Amount:      immediate,
			Kind:        token.KindImmediateRelease,
			ScheduleIDs: []id.ScheduleID{s.ID},
			CreatedAt:   now,
		}
		return v.transfer(ctx, tx, release)
	})
	if err != nil {
		v.logger.Warn("vesting schedule rejected",
			"beneficiary", beneficiary,
			"admin", ident.Subject,
			"error", err,
		)
		return nil, err
	}

	v.logger.Info("vesting schedule created",
		"schedule_id", s.ID.String(),
		"beneficiary", beneficiary,
		"index", s.Index,
		"total_amount", s.TotalAmount.String(),
		"immediate_release", s.ImmediateReleaseAmount().String(),
		"admin", ident.Subject,
	)

	v.plugins.EmitScheduleCreated(ctx, s.Clone())
	if release != nil {
		v.plugins.EmitImmediateRelease(ctx, s.Clone(), release)
	}

	return s, nil
}

// authorize checks cred and wraps any failure in ErrUnauthorized.
func (v *Vesting) authorize(ctx context.Context, cred auth.Credential, action string) (*auth.Identity, error) {
	ident, err := v.authorizer.Authorize(ctx, cred)
	if err != nil {
		v.logger.Warn("unauthorized vesting operation",
			"action", action,
			"subject", cred.Subject,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if ident == nil {
		ident = &auth.Identity{Subject: cred.Subject}
	}
	return ident, nil
}

// transfer moves value out of the funding pool, reporting a short pool as
// ErrInsufficientFunding.
func (v *Vesting) transfer(ctx context.Context, tx store.Tx, t *token.Transfer) error {
	err := tx.Transfer(ctx, t)
	if errors.Is(err, ErrInsufficientBalance) {
		return fmt.Errorf("%w: pool %s cannot cover %s", ErrInsufficientFunding, t.From, t.Amount)
	}
	if err != nil {
		return fmt.Errorf("transfer %s to %s: %w", t.Kind, t.To, err)
	}
	return nil
}
