// Package storetest holds the behavior every store.Store backend must
// share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

// Factory returns an empty, migrated store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run exercises a store backend.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"ScheduleRoundTrip", testScheduleRoundTrip},
		{"ScheduleOrdering", testScheduleOrdering},
		{"ScheduleNotFound", testScheduleNotFound},
		{"DuplicateIndex", testDuplicateIndex},
		{"ListBeneficiaries", testListBeneficiaries},
		{"UpdateClaimed", testUpdateClaimed},
		{"DepositAndBalance", testDepositAndBalance},
		{"Transfer", testTransfer},
		{"ListTransfers", testListTransfers},
		{"NonPositivePagination", testNonPositivePagination},
		{"TxCommit", testTxCommit},
		{"TxRollback", testTxRollback},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

func newSchedule(beneficiary string, index int) *schedule.Schedule {
	return &schedule.Schedule{
		Entity:                  types.NewEntityAt(epoch),
		ID:                      id.NewScheduleID(),
		Beneficiary:             beneficiary,
		Index:                   index,
		TotalAmount:             types.Units(24000, 18),
		ImmediateReleasePercent: 10,
		LockDuration:            24 * time.Hour,
		CliffDuration:           48*time.Hour + time.Nanosecond,
		VestingDuration:         720 * time.Hour,
		StartTime:               epoch,
		ClaimedAmount:           types.Zero(),
	}
}

func assertSameSchedule(t *testing.T, want, got *schedule.Schedule) {
	t.Helper()
	assert.Equal(t, want.ID.String(), got.ID.String())
	assert.Equal(t, want.Beneficiary, got.Beneficiary)
	assert.Equal(t, want.Index, got.Index)
	assert.True(t, want.TotalAmount.Equal(got.TotalAmount), "total: want %s, got %s", want.TotalAmount, got.TotalAmount)
	assert.Equal(t, want.ImmediateReleasePercent, got.ImmediateReleasePercent)
	assert.Equal(t, want.LockDuration, got.LockDuration)
	assert.Equal(t, want.CliffDuration, got.CliffDuration)
	assert.Equal(t, want.VestingDuration, got.VestingDuration)
	assert.True(t, want.StartTime.Equal(got.StartTime), "start: want %s, got %s", want.StartTime, got.StartTime)
	assert.True(t, want.ClaimedAmount.Equal(got.ClaimedAmount), "claimed: want %s, got %s", want.ClaimedAmount, got.ClaimedAmount)
}

func testScheduleRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()

	sch := newSchedule("alice", 0)
	sch.Metadata = map[string]string{"round": "seed", "tranche": "1"}
	require.NoError(t, s.CreateSchedule(ctx, sch))

	got, err := s.GetSchedule(ctx, "alice", 0)
	require.NoError(t, err)
	assertSameSchedule(t, sch, got)
	assert.Equal(t, sch.Metadata, got.Metadata)

	byID, err := s.GetScheduleByID(ctx, sch.ID)
	require.NoError(t, err)
	assertSameSchedule(t, sch, byID)

	// Accrual must not drift through storage.
	at := epoch.Add(500 * time.Hour)
	assert.True(t, sch.Claimable(at).Equal(got.Claimable(at)))
}

func testScheduleOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()

	// Inserted out of order on purpose.
	for _, idx := range []int{2, 0, 1} {
		require.NoError(t, s.CreateSchedule(ctx, newSchedule("bob", idx)))
	}
	require.NoError(t, s.CreateSchedule(ctx, newSchedule("carol", 0)))

	list, err := s.ListSchedules(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, sch := range list {
		assert.Equal(t, i, sch.Index)
		assert.Equal(t, "bob", sch.Beneficiary)
	}

	n, err := s.CountSchedules(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountSchedules(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err = s.ListSchedules(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testScheduleNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetSchedule(ctx, "dave", 0)
	assert.ErrorIs(t, err, vesting.ErrScheduleNotFound)

	_, err = s.GetScheduleByID(ctx, id.NewScheduleID())
	assert.ErrorIs(t, err, vesting.ErrScheduleNotFound)

	err = s.UpdateClaimed(ctx, id.NewScheduleID(), types.Zero(), types.NewAmount(1))
	assert.ErrorIs(t, err, vesting.ErrScheduleNotFound)
}

func testDuplicateIndex(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.CreateSchedule(ctx, newSchedule("erin", 0)))
	err := s.CreateSchedule(ctx, newSchedule("erin", 0))
	assert.ErrorIs(t, err, vesting.ErrAlreadyExists)

	n, err := s.CountSchedules(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testListBeneficiaries(t *testing.T, s store.Store) {
	ctx := context.Background()

	for _, b := range []string{"zed", "amy", "kim", "amy"} {
		n, err := s.CountSchedules(ctx, b)
		require.NoError(t, err)
		require.NoError(t, s.CreateSchedule(ctx, newSchedule(b, n)))
	}

	all, err := s.ListBeneficiaries(ctx, schedule.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, []string{"amy", "kim", "zed"}, all)

	page, err := s.ListBeneficiaries(ctx, schedule.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"kim", "zed"}, page)

	page, err = s.ListBeneficiaries(ctx, schedule.ListOpts{Limit: 2, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testUpdateClaimed(t *testing.T, s store.Store) {
	ctx := context.Background()

	sch := newSchedule("frank", 0)
	require.NoError(t, s.CreateSchedule(ctx, sch))

	first := types.MustParseAmount("1000000000000000000001")
	require.NoError(t, s.UpdateClaimed(ctx, sch.ID, types.Zero(), first))

	// A stale previous value is a lost race.
	err := s.UpdateClaimed(ctx, sch.ID, types.Zero(), types.NewAmount(5))
	assert.ErrorIs(t, err, vesting.ErrConcurrentClaim)

	second := first.Add(types.NewAmount(99))
	require.NoError(t, s.UpdateClaimed(ctx, sch.ID, first, second))

	got, err := s.GetScheduleByID(ctx, sch.ID)
	require.NoError(t, err)
	assert.True(t, got.ClaimedAmount.Equal(second), "claimed = %s", got.ClaimedAmount)
}

func testDepositAndBalance(t *testing.T, s store.Store) {
	ctx := context.Background()

	b, err := s.BalanceOf(ctx, "pool")
	require.NoError(t, err)
	assert.True(t, b.IsZero())

	d, err := s.Deposit(ctx, "pool", types.Units(5, 18))
	require.NoError(t, err)
	assert.False(t, d.ID.IsNil())
	assert.Equal(t, token.KindDeposit, d.Kind)
	assert.Equal(t, "pool", d.To)

	_, err = s.Deposit(ctx, "pool", types.Units(7, 18))
	require.NoError(t, err)

	b, err = s.BalanceOf(ctx, "pool")
	require.NoError(t, err)
	assert.True(t, b.Equal(types.Units(12, 18)), "balance = %s", b)

	_, err = s.Deposit(ctx, "pool", types.Zero())
	assert.ErrorIs(t, err, vesting.ErrInvalidAmount)
}

func testTransfer(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Deposit(ctx, "pool", types.NewAmount(100))
	require.NoError(t, err)

	sid := id.NewScheduleID()
	xfer := &token.Transfer{
		From:        "pool",
		To:          "grace",
		Amount:      types.NewAmount(60),
		Kind:        token.KindClaim,
		ScheduleIDs: []id.ScheduleID{sid},
	}
	require.NoError(t, s.Transfer(ctx, xfer))
	assert.False(t, xfer.ID.IsNil())

	err = s.Transfer(ctx, &token.Transfer{From: "pool", To: "grace", Amount: types.NewAmount(41), Kind: token.KindClaim})
	assert.ErrorIs(t, err, vesting.ErrInsufficientBalance)

	err = s.Transfer(ctx, &token.Transfer{From: "pool", To: "grace", Amount: types.Zero(), Kind: token.KindClaim})
	assert.ErrorIs(t, err, vesting.ErrInvalidAmount)

	pool, err := s.BalanceOf(ctx, "pool")
	require.NoError(t, err)
	assert.True(t, pool.Equal(types.NewAmount(40)), "pool = %s", pool)

	grace, err := s.BalanceOf(ctx, "grace")
	require.NoError(t, err)
	assert.True(t, grace.Equal(types.NewAmount(60)), "grace = %s", grace)

	list, err := s.ListTransfers(ctx, "grace", token.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, xfer.ID.String(), list[0].ID.String())
	require.Len(t, list[0].ScheduleIDs, 1)
	assert.Equal(t, sid.String(), list[0].ScheduleIDs[0].String())
}

func testListTransfers(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Deposit(ctx, "pool", types.NewAmount(1000))
	require.NoError(t, err)

	base := time.Now().UTC().Add(time.Hour)
	for i := range 4 {
		kind := token.KindClaim
		if i%2 == 0 {
			kind = token.KindImmediateRelease
		}
		require.NoError(t, s.Transfer(ctx, &token.Transfer{
			From:      "pool",
			To:        "heidi",
			Amount:    types.NewAmount(int64(i + 1)),
			Kind:      kind,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	list, err := s.ListTransfers(ctx, "heidi", token.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 4)
	for i, want := range []int64{4, 3, 2, 1} {
		assert.True(t, list[i].Amount.Equal(types.NewAmount(want)), "position %d: %s", i, list[i].Amount)
	}

	claims, err := s.ListTransfers(ctx, "heidi", token.ListOpts{Kind: token.KindClaim})
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.True(t, claims[0].Amount.Equal(types.NewAmount(4)))

	page, err := s.ListTransfers(ctx, "heidi", token.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].Amount.Equal(types.NewAmount(3)))

	pool, err := s.ListTransfers(ctx, "pool", token.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, pool, 5)

	all, err := s.ListTransfers(ctx, "", token.ListOpts{Kind: token.KindDeposit})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testNonPositivePagination(t *testing.T, s store.Store) {
	ctx := context.Background()

	for _, b := range []string{"ivy", "jon"} {
		require.NoError(t, s.CreateSchedule(ctx, newSchedule(b, 0)))
	}
	_, err := s.Deposit(ctx, "pool", types.NewAmount(10))
	require.NoError(t, err)
	require.NoError(t, s.Transfer(ctx, &token.Transfer{
		From:   "pool",
		To:     "ivy",
		Amount: types.NewAmount(3),
		Kind:   token.KindClaim,
	}))

	for _, opts := range []token.ListOpts{
		{Limit: -1},
		{Offset: -3},
		{Limit: -2, Offset: -2},
	} {
		list, err := s.ListTransfers(ctx, "", opts)
		require.NoError(t, err, "%+v", opts)
		assert.Len(t, list, 2, "%+v", opts)
	}

	names, err := s.ListBeneficiaries(ctx, schedule.ListOpts{Limit: -1, Offset: -1})
	require.NoError(t, err)
	assert.Equal(t, []string{"ivy", "jon"}, names)
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Deposit(ctx, "pool", types.NewAmount(100))
	require.NoError(t, err)

	sch := newSchedule("ivan", 0)
	err = s.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateSchedule(ctx, sch); err != nil {
			return err
		}
		if err := tx.UpdateClaimed(ctx, sch.ID, types.Zero(), types.NewAmount(30)); err != nil {
			return err
		}

		// Writes are visible inside the transaction.
		got, err := tx.GetScheduleByID(ctx, sch.ID)
		if err != nil {
			return err
		}
		if !got.ClaimedAmount.Equal(types.NewAmount(30)) {
			return fmt.Errorf("claimed inside tx = %s", got.ClaimedAmount)
		}

		return tx.Transfer(ctx, &token.Transfer{From: "pool", To: "ivan", Amount: types.NewAmount(30), Kind: token.KindClaim})
	})
	require.NoError(t, err)

	got, err := s.GetScheduleByID(ctx, sch.ID)
	require.NoError(t, err)
	assert.True(t, got.ClaimedAmount.Equal(types.NewAmount(30)))

	b, err := s.BalanceOf(ctx, "ivan")
	require.NoError(t, err)
	assert.True(t, b.Equal(types.NewAmount(30)))
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Deposit(ctx, "pool", types.NewAmount(10))
	require.NoError(t, err)

	sch := newSchedule("judy", 0)
	err = s.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateSchedule(ctx, sch); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, &token.Transfer{From: "pool", To: "judy", Amount: types.NewAmount(5), Kind: token.KindImmediateRelease}); err != nil {
			return err
		}
		return tx.Transfer(ctx, &token.Transfer{From: "pool", To: "judy", Amount: types.NewAmount(6), Kind: token.KindImmediateRelease})
	})
	assert.ErrorIs(t, err, vesting.ErrInsufficientBalance)

	n, err := s.CountSchedules(ctx, "judy")
	require.NoError(t, err)
	assert.Zero(t, n)

	pool, err := s.BalanceOf(ctx, "pool")
	require.NoError(t, err)
	assert.True(t, pool.Equal(types.NewAmount(10)), "pool = %s", pool)

	list, err := s.ListTransfers(ctx, "judy", token.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, list)

	sentinel := errors.New("abort")
	err = s.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateSchedule(ctx, newSchedule("judy", 0)); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	n, err = s.CountSchedules(ctx, "judy")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testPing(t *testing.T, s store.Store) {
	assert.NoError(t, s.Ping(context.Background()))
}
