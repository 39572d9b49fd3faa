package vesting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/xraph/vesting/auth"
	"github.com/xraph/vesting/funding"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

const beneficiaryPageSize = 500

// ──────────────────────────────────────────────────
// Funding pool
// ──────────────────────────────────────────────────

// Fund deposits amount into the funding pool. Like schedule creation it
// requires an administrative credential.
func (v *Vesting) Fund(ctx context.Context, cred auth.Credential, amount types.Amount) (*token.Transfer, error) {
	ident, err := v.authorize(ctx, cred, "fund")
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ValidationError{Field: "amount", Message: "must be greater than 0", Err: ErrInvalidAmount}
	}

	t, err := v.store.Deposit(ctx, v.fundingPool, amount)
	if err != nil {
		return nil, fmt.Errorf("vesting: fund pool: %w", err)
	}

	v.logger.Info("funding pool deposit",
		"pool", v.fundingPool,
		"amount", amount.String(),
		"admin", ident.Subject,
	)
	return t, nil
}

// Obligations returns what the pool still owes across every schedule:
// principal that has not yet been claimed, vested or not.
func (v *Vesting) Obligations(ctx context.Context) (types.Amount, int, int, error) {
	total := types.Zero()
	var beneficiaries, schedules int

	for offset := 0; ; offset += beneficiaryPageSize {
		page, err := v.store.ListBeneficiaries(ctx, schedule.ListOpts{Limit: beneficiaryPageSize, Offset: offset})
		if err != nil {
			return types.Zero(), 0, 0, fmt.Errorf("vesting: list beneficiaries: %w", err)
		}

		for _, b := range page {
			list, err := v.store.ListSchedules(ctx, b)
			if err != nil {
				return types.Zero(), 0, 0, fmt.Errorf("vesting: list schedules for %s: %w", b, err)
			}
			for _, s := range list {
				total = total.Add(s.Outstanding())
			}
			beneficiaries++
			schedules += len(list)
		}

		if len(page) < beneficiaryPageSize {
			return total, beneficiaries, schedules, nil
		}
	}
}

// CheckSolvency compares the pool balance with its outstanding obligations.
// An underfunded pool is reported to plugins and logged, and is not an
// error.
func (v *Vesting) CheckSolvency(ctx context.Context) (*funding.Report, error) {
	obligations, beneficiaries, schedules, err := v.Obligations(ctx)
	if err != nil {
		return nil, err
	}

	balance, err := v.store.BalanceOf(ctx, v.fundingPool)
	if err != nil {
		return nil, fmt.Errorf("vesting: pool balance: %w", err)
	}

	rep := &funding.Report{
		Pool:          v.fundingPool,
		Balance:       balance,
		Obligations:   obligations,
		Beneficiaries: beneficiaries,
		Schedules:     schedules,
		CheckedAt:     v.Now(),
	}

	if rep.Solvent() {
		v.logger.Debug("funding pool solvent",
			"pool", rep.Pool,
			"balance", rep.Balance.String(),
			"obligations", rep.Obligations.String(),
		)
		return rep, nil
	}

	v.logger.Warn("funding pool underfunded",
		"pool", rep.Pool,
		"balance", rep.Balance.String(),
		"obligations", rep.Obligations.String(),
		"shortfall", rep.Shortfall().String(),
	)
	v.plugins.EmitUnderfunded(ctx, rep)
	return rep, nil
}

// ──────────────────────────────────────────────────
// Solvency monitor
// ──────────────────────────────────────────────────

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// startSolvencyMonitor runs CheckSolvency on v.solvencySpec. Called with
// v.mu held.
func (v *Vesting) startSolvencyMonitor() error {
	logger := cronLogger{v.logger}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := c.AddFunc(v.solvencySpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.solvencyTimeout)
		defer cancel()

		if _, err := v.CheckSolvency(ctx); err != nil {
			v.logger.Error("solvency check failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("vesting: solvency schedule %q: %w", v.solvencySpec, err)
	}

	c.Start()
	v.cron = c
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
