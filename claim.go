package vesting

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/vesting/claim"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

// ──────────────────────────────────────────────────
// Claiming
// ──────────────────────────────────────────────────

// Claim pays out everything the beneficiary can claim right now across all
// of their schedules, as a single transfer from the funding pool.
//
// Every schedule is evaluated against the same instant. Each schedule's
// claimed counter is advanced with a compare-and-set before the transfer
// runs, and all of it commits together, so a claim either pays and records
// the full amount or changes nothing. Claims are not restricted to the
// beneficiary: anyone may trigger one, and the payout always goes to the
// beneficiary.
//
// Returns ErrNothingToClaim when no schedule has anything claimable.
func (v *Vesting) Claim(ctx context.Context, beneficiary string) (*claim.Receipt, error) {
	beneficiary = v.canonical(beneficiary)

	receipt, err := v.claim(ctx, beneficiary)
	if err != nil {
		if errors.Is(err, ErrNothingToClaim) {
			v.logger.Debug("nothing to claim", "beneficiary", beneficiary)
		} else {
			v.logger.Warn("claim failed",
				"beneficiary", beneficiary,
				"error", err,
			)
		}
		v.plugins.EmitClaimRejected(ctx, beneficiary, err)
		return nil, err
	}

	v.logger.Info("vesting claimed",
		"claim_id", receipt.ID.String(),
		"beneficiary", beneficiary,
		"amount", receipt.Amount.String(),
		"schedules", len(receipt.Portions),
	)

	v.plugins.EmitClaimed(ctx, receipt)
	return receipt, nil
}

func (v *Vesting) claim(ctx context.Context, beneficiary string) (*claim.Receipt, error) {
	unlock, err := v.lockBeneficiary(ctx, beneficiary)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := v.Now()
	var receipt *claim.Receipt

	err = v.store.RunInTx(ctx, func(tx store.Tx) error {
		schedules, err := tx.ListSchedules(ctx, beneficiary)
		if err != nil {
			return fmt.Errorf("list schedules: %w", err)
		}

		total := types.Zero()
		portions := make([]claim.Portion, 0, len(schedules))
		for _, s := range schedules {
			amount := s.Claimable(now)
			if amount.IsZero() {
				continue
			}

			next := s.ClaimedAmount.Add(amount)
			if err := tx.UpdateClaimed(ctx, s.ID, s.ClaimedAmount, next); err != nil {
				return fmt.Errorf("advance claimed on schedule %d: %w", s.Index, err)
			}

			portions = append(portions, claim.Portion{
				ScheduleID:    s.ID,
				Index:         s.Index,
				Amount:        amount,
				ClaimedBefore: s.ClaimedAmount,
				ClaimedAfter:  next,
			})
			total = total.Add(amount)
		}

		if total.IsZero() {
			return ErrNothingToClaim
		}

		r := &claim.Receipt{
			ID:          id.NewClaimID(),
			Beneficiary: beneficiary,
			Amount:      total,
			Portions:    portions,
			At:          now,
		}
		r.Transfer = &token.Transfer{
			ID:          id.NewTransferID(),
			From:        v.fundingPool,
			To:          beneficiary,
			Amount:      total,
			Kind:        token.KindClaim,
			ScheduleIDs: r.ScheduleIDs(),
			CreatedAt:   now,
		}
		if err := v.transfer(ctx, tx, r.Transfer); err != nil {
			return err
		}

		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return receipt, nil
}
