// Package vesting provides a token vesting ledger for Go applications.
//
// Vesting is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - Append-only vesting schedules per beneficiary with lock, cliff and
//     linear ramp phases
//   - An optional immediate release paid out when a schedule is created
//   - Atomic claims that pay everything claimable in one transfer
//   - A funding pool with solvency checks on a cron schedule
//   - Pluggable stores (memory, PostgreSQL, SQLite, MongoDB via Grove)
//   - Audit, metrics and message broker hooks through plugins
//
// # Quick Start
//
// Create an engine over a store and fund its pool:
//
//	import (
//	    "github.com/xraph/vesting"
//	    "github.com/xraph/vesting/auth"
//	    "github.com/xraph/vesting/store/memory"
//	)
//
//	jwtAuth := auth.NewJWTAuthorizer(secret)
//	v := vesting.New(memory.New(), vesting.WithAuthorizer(jwtAuth))
//
//	if err := v.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer v.Stop()
//
//	_, err := v.Fund(ctx, adminCred, vesting.Units(1_000_000, 18))
//
// # Schedules
//
// A schedule is created by an administrator and never edited afterwards:
//
//	s, err := v.AddVestingSchedule(ctx, adminCred, vesting.ScheduleRequest{
//	    Beneficiary:             "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
//	    TotalAmount:             vesting.Units(1000, 18),
//	    ImmediateReleasePercent: 10,
//	    LockDuration:            30 * 24 * time.Hour,
//	    CliffDuration:           60 * 24 * time.Hour,
//	    VestingDuration:         300 * 24 * time.Hour,
//	})
//
// The immediate release is floor(total * percent / 100) and is paid at
// creation. The rest vests linearly over cliff + vesting once the lock has
// elapsed, and becomes claimable when the cliff is reached.
//
// # Claiming
//
// Anyone may trigger a claim for a beneficiary. The payout always goes to
// the beneficiary:
//
//	receipt, err := v.Claim(ctx, beneficiary)
//	if vesting.IsNothingToClaim(err) {
//	    // still locked, before the cliff, or already claimed
//	}
//
// # Amounts
//
// Amounts are arbitrary-precision integers in the token's smallest unit.
// Every division rounds down, so rounding never pays out more than a
// schedule holds.
//
// # TypeID
//
// All records use TypeID for globally unique, type-safe identifiers:
//
//	vsch_01h2xcejqtf2nbrexx3vqjhp41  // Schedule ID
//	xfer_01h2xcejqtf2nbrexx3vqjhp41  // Transfer ID
//	clm_01h455vb4pex5vsknk084sn02q   // Claim ID
package vesting
