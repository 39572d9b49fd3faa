package vesting_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/address"
	"github.com/xraph/vesting/auth"
	"github.com/xraph/vesting/claim"
	"github.com/xraph/vesting/funding"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/store/memory"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

const month = 30 * 24 * time.Hour

var admin = auth.Credential{Subject: "admin"}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func adminOnly() auth.Authorizer {
	return auth.AuthorizerFunc(func(_ context.Context, cred auth.Credential) (*auth.Identity, error) {
		if cred.Subject != "admin" {
			return nil, auth.ErrDenied
		}
		return &auth.Identity{Subject: cred.Subject, Method: "test"}, nil
	})
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, opts ...vesting.Option) (*vesting.Vesting, *clock) {
	t.Helper()

	clk := newClock()
	base := []vesting.Option{
		vesting.WithLogger(discard()),
		vesting.WithAuthorizer(adminOnly()),
		vesting.WithClock(clk.Now),
	}
	v := vesting.New(memory.New(), append(base, opts...)...)

	require.NoError(t, v.Start(context.Background()))
	t.Cleanup(func() { _ = v.Stop() })
	return v, clk
}

func fund(t *testing.T, v *vesting.Vesting, amount int64) {
	t.Helper()
	_, err := v.Fund(context.Background(), admin, types.NewAmount(amount))
	require.NoError(t, err)
}

func addSchedule(t *testing.T, v *vesting.Vesting, req vesting.ScheduleRequest) *schedule.Schedule {
	t.Helper()
	s, err := v.AddVestingSchedule(context.Background(), admin, req)
	require.NoError(t, err)
	return s
}

func balance(t *testing.T, v *vesting.Vesting, account string) types.Amount {
	t.Helper()
	b, err := v.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return b
}

// assertNear checks got is within one unit of want.
func assertNear(t *testing.T, want int64, got types.Amount) {
	t.Helper()
	diff := got.Sub(types.NewAmount(want))
	if diff.IsNegative() {
		diff = types.Zero().Sub(diff)
	}
	assert.False(t, diff.GreaterThan(types.NewAmount(1)), "want %d (±1), got %s", want, got)
}

func assertAmount(t *testing.T, want int64, got types.Amount) {
	t.Helper()
	assert.True(t, got.Equal(types.NewAmount(want)), "want %d, got %s", want, got)
}

// claimAll claims and ignores the nothing-to-claim outcome.
func claimAll(t *testing.T, v *vesting.Vesting, beneficiary string) {
	t.Helper()
	_, err := v.Claim(context.Background(), beneficiary)
	if err != nil && !vesting.IsNothingToClaim(err) {
		t.Fatalf("claim: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Scenarios
// ──────────────────────────────────────────────────

func TestScenarioLockOnly(t *testing.T) {
	v, clk := newEngine(t)
	ctx := context.Background()
	fund(t, v, 1_000_000)

	addSchedule(t, v, vesting.ScheduleRequest{
		Beneficiary:     "alice",
		TotalAmount:     types.NewAmount(24000),
		LockDuration:    24 * month,
		VestingDuration: 24 * month,
	})
	assertAmount(t, 0, balance(t, v, "alice"))

	clk.Advance(24 * month)
	_, err := v.Claim(ctx, "alice")
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)

	clk.Advance(month)
	claimAll(t, v, "alice")
	assertNear(t, 1000, balance(t, v, "alice"))

	clk.Advance(month)
	claimAll(t, v, "alice")
	assertNear(t, 2000, balance(t, v, "alice"))

	clk.Advance(22 * month)
	claimAll(t, v, "alice")
	assertAmount(t, 24000, balance(t, v, "alice"))

	clk.Advance(12 * month)
	_, err = v.Claim(ctx, "alice")
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)
	assertAmount(t, 24000, balance(t, v, "alice"))
}

func TestScenarioImmediateReleaseCliffVesting(t *testing.T) {
	v, clk := newEngine(t)
	ctx := context.Background()
	fund(t, v, 1_000_000)

	addSchedule(t, v, vesting.ScheduleRequest{
		Beneficiary:             "bob",
		TotalAmount:             types.NewAmount(10000),
		ImmediateReleasePercent: 10,
		CliffDuration:           2 * month,
		VestingDuration:         4 * month,
	})
	assertAmount(t, 1000, balance(t, v, "bob"))

	_, err := v.Claim(ctx, "bob")
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)

	clk.Advance(2*month - time.Second)
	_, err = v.Claim(ctx, "bob")
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)

	clk.Advance(month + time.Second)
	claimAll(t, v, "bob")
	assertNear(t, 5500, balance(t, v, "bob"))

	clk.Advance(month)
	claimAll(t, v, "bob")
	assertNear(t, 7000, balance(t, v, "bob"))

	clk.Advance(2 * month)
	claimAll(t, v, "bob")
	assertAmount(t, 10000, balance(t, v, "bob"))
}

func TestScenarioTwoSchedules(t *testing.T) {
	v, clk := newEngine(t)
	fund(t, v, 1_000_000)

	addSchedule(t, v, vesting.ScheduleRequest{
		Beneficiary:     "carol",
		TotalAmount:     types.NewAmount(24000),
		LockDuration:    24 * month,
		VestingDuration: 24 * month,
	})
	addSchedule(t, v, vesting.ScheduleRequest{
		Beneficiary:     "carol",
		TotalAmount:     types.NewAmount(24000),
		CliffDuration:   24 * month,
		VestingDuration: 24 * month,
	})

	clk.Advance(25 * month)
	claimAll(t, v, "carol")
	assertNear(t, 13500, balance(t, v, "carol"))

	clk.Advance(23 * month)
	claimAll(t, v, "carol")
	assertAmount(t, 48000, balance(t, v, "carol"))
}

func TestScenarioTokenDecimals(t *testing.T) {
	v, clk := newEngine(t)
	ctx := context.Background()

	_, err := v.Fund(ctx, admin, vesting.Units(1_000_000, 18))
	require.NoError(t, err)

	addSchedule(t, v, vesting.ScheduleRequest{
		Beneficiary:             "dave",
		TotalAmount:             vesting.Units(10000, 18),
		ImmediateReleasePercent: 10,
		CliffDuration:           2 * month,
		VestingDuration:         4 * month,
	})

	clk.Advance(6 * month)
	r, err := v.Claim(ctx, "dave")
	require.NoError(t, err)
	assert.True(t, r.Amount.Equal(vesting.Units(9000, 18)), "claimed %s", r.Amount.Format(18))
	assert.True(t, balance(t, v, "dave").Equal(vesting.Units(10000, 18)))
}

// ──────────────────────────────────────────────────
// Schedule creation
// ──────────────────────────────────────────────────

func TestAddVestingScheduleAppends(t *testing.T) {
	v, clk := newEngine(t)
	ctx := context.Background()
	fund(t, v, 1_000_000)

	for i := range 3 {
		s := addSchedule(t, v, vesting.ScheduleRequest{
			Beneficiary:     "erin",
			TotalAmount:     types.NewAmount(int64(100 * (i + 1))),
			VestingDuration: month,
			Metadata:        map[string]string{"round": "seed"},
		})
		assert.Equal(t, i, s.Index)
		assert.Equal(t, clk.Now(), s.StartTime)
		assert.True(t, s.ClaimedAmount.IsZero())
		clk.Advance(time.Hour)
	}

	n, err := v.ScheduleCount(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	s, err := v.GetSchedule(ctx, "erin", 1)
	require.NoError(t, err)
	assertAmount(t, 200, s.TotalAmount)
	assert.Equal(t, "seed", s.Metadata["round"])

	_, err = v.GetSchedule(ctx, "erin", 3)
	assert.True(t, vesting.IsNotFound(err))
	_, err = v.GetSchedule(ctx, "erin", -1)
	assert.True(t, vesting.IsNotFound(err))

	list, err := v.ListSchedules(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAddVestingScheduleValidation(t *testing.T) {
	v, _ := newEngine(t)
	fund(t, v, 1_000_000)

	valid := func() vesting.ScheduleRequest {
		return vesting.ScheduleRequest{
			Beneficiary:     "frank",
			TotalAmount:     types.NewAmount(1000),
			VestingDuration: month,
		}
	}

	longKey := make([]byte, 65)
	for i := range longKey {
		longKey[i] = 'k'
	}

	tests := []struct {
		name   string
		mutate func(*vesting.ScheduleRequest)
		want   error
	}{
		{"zero amount", func(r *vesting.ScheduleRequest) { r.TotalAmount = types.Zero() }, vesting.ErrInvalidAmount},
		{"negative amount", func(r *vesting.ScheduleRequest) { r.TotalAmount = types.NewAmount(-5) }, vesting.ErrInvalidAmount},
		{"percent over 100", func(r *vesting.ScheduleRequest) { r.ImmediateReleasePercent = 101 }, vesting.ErrInvalidPercentage},
		{"negative lock", func(r *vesting.ScheduleRequest) { r.LockDuration = -time.Second }, vesting.ErrInvalidDuration},
		{"negative cliff", func(r *vesting.ScheduleRequest) { r.CliffDuration = -time.Second }, vesting.ErrInvalidDuration},
		{"negative vesting", func(r *vesting.ScheduleRequest) { r.VestingDuration = -time.Second }, vesting.ErrInvalidDuration},
		{"overflowing durations", func(r *vesting.ScheduleRequest) {
			r.LockDuration = time.Duration(1 << 62)
			r.CliffDuration = time.Duration(1 << 62)
		}, vesting.ErrInvalidDuration},
		{"empty beneficiary", func(r *vesting.ScheduleRequest) { r.Beneficiary = "" }, vesting.ErrInvalidBeneficiary},
		{"blank beneficiary", func(r *vesting.ScheduleRequest) { r.Beneficiary = "   " }, vesting.ErrInvalidBeneficiary},
		{"metadata key too long", func(r *vesting.ScheduleRequest) {
			r.Metadata = map[string]string{string(longKey): "x"}
		}, vesting.ErrInvalidMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)

			_, err := v.AddVestingSchedule(context.Background(), admin, req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, vesting.IsValidation(err))

			var verr vesting.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}

	n, err := v.ScheduleCount(context.Background(), "frank")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddVestingScheduleBoundaries(t *testing.T) {
	v, clk := newEngine(t)
	ctx := context.Background()
	fund(t, v, 1_000_000)

	// Entire amount released at creation.
	addSchedule(t, v, vesting.ScheduleRequest{
		Beneficiary:             "gina",
		TotalAmount:             types.NewAmount(500),
		ImmediateReleasePercent: 100,
		VestingDuration:         month,
	})
	assertAmount(t, 500, balance(t, v, "gina"))
	clk.Advance(2 * month)
	_, err := v.Claim(ctx, "gina")
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)

	// No lock, cliff or vesting: vests right after creation.
	addSchedule(t, v, vesting.ScheduleRequest{
		Beneficiary: "hank",
		TotalAmount: types.NewAmount(700),
	})
	_, err = v.Claim(ctx, "hank")
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)

	clk.Advance(time.Nanosecond)
	r, err := v.Claim(ctx, "hank")
	require.NoError(t, err)
	assertAmount(t, 700, r.Amount)
}

func TestAddVestingScheduleUnauthorized(t *testing.T) {
	req := vesting.ScheduleRequest{
		Beneficiary:     "ivan",
		TotalAmount:     types.NewAmount(1000),
		VestingDuration: month,
	}

	t.Run("default denies everyone", func(t *testing.T) {
		v := vesting.New(memory.New(), vesting.WithLogger(discard()))
		require.NoError(t, v.Start(context.Background()))
		defer v.Stop()

		_, err := v.AddVestingSchedule(context.Background(), admin, req)
		assert.True(t, vesting.IsUnauthorized(err))
		assert.ErrorIs(t, err, auth.ErrDenied)

		_, err = v.Fund(context.Background(), admin, types.NewAmount(1))
		assert.True(t, vesting.IsUnauthorized(err))
	})

	t.Run("wrong subject", func(t *testing.T) {
		v, _ := newEngine(t)
		fund(t, v, 1000)

		_, err := v.AddVestingSchedule(context.Background(), auth.Credential{Subject: "mallory"}, req)
		assert.ErrorIs(t, err, vesting.ErrUnauthorized)

		n, err := v.ScheduleCount(context.Background(), "ivan")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("unauthorized before validation", func(t *testing.T) {
		v, _ := newEngine(t)
		_, err := v.AddVestingSchedule(context.Background(), auth.Credential{}, vesting.ScheduleRequest{})
		assert.ErrorIs(t, err, vesting.ErrUnauthorized)
		assert.False(t, vesting.IsValidation(err))
	})
}

func TestAddVestingScheduleWithJWT(t *testing.T) {
	clk := newClock()
	jwtAuth := auth.NewJWTAuthorizer("test-secret", auth.WithTimeFunc(clk.Now))
	v := vesting.New(memory.New(),
		vesting.WithLogger(discard()),
		vesting.WithAuthorizer(jwtAuth),
		vesting.WithClock(clk.Now),
	)
	ctx := context.Background()
	require.NoError(t, v.Start(ctx))
	defer v.Stop()

	tok, err := jwtAuth.Issue("ops", time.Hour)
	require.NoError(t, err)
	cred := auth.Credential{Subject: "ops", Token: tok}

	_, err = v.Fund(ctx, cred, types.NewAmount(1000))
	require.NoError(t, err)

	_, err = v.AddVestingSchedule(ctx, cred, vesting.ScheduleRequest{
		Beneficiary:     "judy",
		TotalAmount:     types.NewAmount(1000),
		VestingDuration: month,
	})
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = v.AddVestingSchedule(ctx, cred, vesting.ScheduleRequest{
		Beneficiary:     "judy",
		TotalAmount:     types.NewAmount(1000),
		VestingDuration: month,
	})
	assert.True(t, vesting.IsUnauthorized(err))
}

func TestAddVestingScheduleInsufficientFunding(t *testing.T) {
	v, _ := newEngine(t)
	ctx := context.Background()
	fund(t, v, 50)

	_, err := v.AddVestingSchedule(ctx, admin, vesting.ScheduleRequest{
		Beneficiary:             "kate",
		TotalAmount:             types.NewAmount(1000),
		ImmediateReleasePercent: 10,
		VestingDuration:         month,
	})
	assert.ErrorIs(t, err, vesting.ErrInsufficientFunding)
	assert.True(t, vesting.IsInsufficientFunding(err))

	n, err := v.ScheduleCount(ctx, "kate")
	require.NoError(t, err)
	assert.Zero(t, n, "schedule must not survive a failed immediate release")
	assertAmount(t, 50, balance(t, v, vesting.DefaultFundingPool))
	assertAmount(t, 0, balance(t, v, "kate"))
}

func TestAddressNormalization(t *testing.T) {
	v, clk := newEngine(t, vesting.WithAddressValidator(address.EVM()))
	ctx := context.Background()
	fund(t, v, 10_000)

	const mixed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	const lower = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"

	s := addSchedule(t, v, vesting.ScheduleRequest{
		Beneficiary:     mixed,
		TotalAmount:     types.NewAmount(1000),
		VestingDuration: month,
	})
	assert.Equal(t, lower, s.Beneficiary)

	_, err := v.AddVestingSchedule(ctx, admin, vesting.ScheduleRequest{
		Beneficiary:     "not-an-address",
		TotalAmount:     types.NewAmount(1000),
		VestingDuration: month,
	})
	assert.ErrorIs(t, err, vesting.ErrInvalidBeneficiary)

	clk.Advance(month)
	r, err := v.Claim(ctx, mixed)
	require.NoError(t, err)
	assert.Equal(t, lower, r.Beneficiary)
	assertAmount(t, 1000, balance(t, v, mixed))

	_, err = v.Claim(ctx, "not-an-address")
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)
}

// ──────────────────────────────────────────────────
// Claiming
// ──────────────────────────────────────────────────

func TestClaimReceipt(t *testing.T) {
	v, clk := newEngine(t)
	ctx := context.Background()
	fund(t, v, 100_000)

	a := addSchedule(t, v, vesting.ScheduleRequest{Beneficiary: "liam", TotalAmount: types.NewAmount(1200), VestingDuration: 12 * month})
	addSchedule(t, v, vesting.ScheduleRequest{Beneficiary: "liam", TotalAmount: types.NewAmount(1200), LockDuration: 24 * month, VestingDuration: 12 * month})
	c := addSchedule(t, v, vesting.ScheduleRequest{Beneficiary: "liam", TotalAmount: types.NewAmount(600), VestingDuration: 6 * month})

	clk.Advance(3 * month)
	r, err := v.Claim(ctx, "liam")
	require.NoError(t, err)

	assertAmount(t, 600, r.Amount)
	require.Len(t, r.Portions, 2)
	assert.Equal(t, a.ID, r.Portions[0].ScheduleID)
	assertAmount(t, 300, r.Portions[0].Amount)
	assert.True(t, r.Portions[0].ClaimedBefore.IsZero())
	assertAmount(t, 300, r.Portions[0].ClaimedAfter)
	assert.Equal(t, c.ID, r.Portions[1].ScheduleID)
	assertAmount(t, 300, r.Portions[1].Amount)

	require.NotNil(t, r.Transfer)
	assert.Equal(t, token.KindClaim, r.Transfer.Kind)
	assert.Equal(t, vesting.DefaultFundingPool, r.Transfer.From)
	assert.Equal(t, "liam", r.Transfer.To)
	assert.Equal(t, r.ScheduleIDs(), r.Transfer.ScheduleIDs)
	assert.Equal(t, clk.Now(), r.At)

	stored, err := v.GetSchedule(ctx, "liam", 0)
	require.NoError(t, err)
	assertAmount(t, 300, stored.ClaimedAmount)

	claims, err := v.Transfers(ctx, "liam", token.ListOpts{Kind: token.KindClaim})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, r.Transfer.ID, claims[0].ID)
}

func TestClaimTwiceAtSameInstant(t *testing.T) {
	v, clk := newEngine(t)
	ctx := context.Background()
	fund(t, v, 10_000)

	addSchedule(t, v, vesting.ScheduleRequest{Beneficiary: "mia", TotalAmount: types.NewAmount(1000), VestingDuration: 10 * month})
	clk.Advance(4 * month)

	_, err := v.Claim(ctx, "mia")
	require.NoError(t, err)

	before, err := v.GetSchedule(ctx, "mia", 0)
	require.NoError(t, err)
	poolBefore := balance(t, v, vesting.DefaultFundingPool)
	journalBefore, err := v.Transfers(ctx, "", token.ListOpts{})
	require.NoError(t, err)

	_, err = v.Claim(ctx, "mia")
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)

	after, err := v.GetSchedule(ctx, "mia", 0)
	require.NoError(t, err)
	assert.True(t, before.ClaimedAmount.Equal(after.ClaimedAmount), "claimed: %s then %s", before.ClaimedAmount, after.ClaimedAmount)
	assert.True(t, poolBefore.Equal(balance(t, v, vesting.DefaultFundingPool)))
	journalAfter, err := v.Transfers(ctx, "", token.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, journalAfter, len(journalBefore))
	assertAmount(t, 400, balance(t, v, "mia"))

	claimable, err := v.GetClaimable(ctx, "mia")
	require.NoError(t, err)
	assert.True(t, claimable.IsZero())
}

func TestClaimUnknownBeneficiary(t *testing.T) {
	v, _ := newEngine(t)
	_, err := v.Claim(context.Background(), "nobody")
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)
}

func TestClaimIsPermissive(t *testing.T) {
	// Claims carry no credential even when every credential is denied.
	v := vesting.New(memory.New(), vesting.WithLogger(discard()), vesting.WithAuthorizer(auth.DenyAll{}))
	ctx := context.Background()
	require.NoError(t, v.Start(ctx))
	defer v.Stop()

	_, err := v.Claim(ctx, "nora")
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)
	assert.False(t, vesting.IsUnauthorized(err))
}

func TestClaimUnderfundedRollsBack(t *testing.T) {
	v, clk := newEngine(t)
	ctx := context.Background()
	fund(t, v, 100)

	addSchedule(t, v, vesting.ScheduleRequest{Beneficiary: "owen", TotalAmount: types.NewAmount(1000), VestingDuration: month})
	clk.Advance(month)

	_, err := v.Claim(ctx, "owen")
	assert.ErrorIs(t, err, vesting.ErrInsufficientFunding)

	s, err := v.GetSchedule(ctx, "owen", 0)
	require.NoError(t, err)
	assert.True(t, s.ClaimedAmount.IsZero(), "claimed counter must roll back")
	assertAmount(t, 100, balance(t, v, vesting.DefaultFundingPool))

	fund(t, v, 900)
	r, err := v.Claim(ctx, "owen")
	require.NoError(t, err)
	assertAmount(t, 1000, r.Amount)
}

func TestConcurrentClaims(t *testing.T) {
	v, clk := newEngine(t)
	ctx := context.Background()
	fund(t, v, 100_000)

	addSchedule(t, v, vesting.ScheduleRequest{Beneficiary: "pat", TotalAmount: types.NewAmount(10_000), VestingDuration: 10 * month})
	addSchedule(t, v, vesting.ScheduleRequest{Beneficiary: "pat", TotalAmount: types.NewAmount(5_000), VestingDuration: 5 * month})
	clk.Advance(2 * month)

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		receipts []*claim.Receipt
		failures []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := v.Claim(ctx, "pat")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			receipts = append(receipts, r)
		}()
	}
	wg.Wait()

	require.Len(t, receipts, 1)
	assertAmount(t, 4000, receipts[0].Amount)
	for _, err := range failures {
		assert.ErrorIs(t, err, vesting.ErrNothingToClaim)
	}
	assertAmount(t, 4000, balance(t, v, "pat"))
}

func TestClaimableAt(t *testing.T) {
	v, clk := newEngine(t)
	ctx := context.Background()
	fund(t, v, 10_000)

	start := clk.Now()
	addSchedule(t, v, vesting.ScheduleRequest{
		Beneficiary:     "quinn",
		TotalAmount:     types.NewAmount(1100),
		LockDuration:    month,
		CliffDuration:   month,
		VestingDuration: 10 * month,
	})

	tests := []struct {
		at   time.Duration
		want int64
	}{
		{0, 0},
		{month, 0},
		{2*month - time.Second, 0},
		{2 * month, 100},
		{7 * month, 600},
		{12 * month, 1100},
		{36 * month, 1100},
	}
	for _, tt := range tests {
		got, err := v.ClaimableAt(ctx, "quinn", start.Add(tt.at))
		require.NoError(t, err)
		assertAmount(t, tt.want, got)
	}
}

func TestSummary(t *testing.T) {
	v, clk := newEngine(t)
	ctx := context.Background()
	fund(t, v, 10_000)

	addSchedule(t, v, vesting.ScheduleRequest{
		Beneficiary:             "rose",
		TotalAmount:             types.NewAmount(1000),
		ImmediateReleasePercent: 20,
		CliffDuration:           month,
		VestingDuration:         3 * month,
	})
	clk.Advance(2 * month)
	claimAll(t, v, "rose")

	sum, err := v.Summary(ctx, "rose")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Schedules)
	assertAmount(t, 1000, sum.TotalAmount)
	assertAmount(t, 200, sum.ImmediateReleased)
	assertAmount(t, 600, sum.TotalVested)
	assertAmount(t, 400, sum.Claimed)
	assert.True(t, sum.Claimable.IsZero())
	assertAmount(t, 400, sum.Locked)
	assert.Nil(t, sum.NextCliff)
}

// ──────────────────────────────────────────────────
// Funding and solvency
// ──────────────────────────────────────────────────

func TestFundRejectsNonPositive(t *testing.T) {
	v, _ := newEngine(t)
	_, err := v.Fund(context.Background(), admin, types.Zero())
	assert.ErrorIs(t, err, vesting.ErrInvalidAmount)
}

func TestConservation(t *testing.T) {
	v, clk := newEngine(t)
	fund(t, v, 50_000)

	beneficiaries := []string{"sam", "tia", "uma"}
	for i, b := range beneficiaries {
		addSchedule(t, v, vesting.ScheduleRequest{
			Beneficiary:             b,
			TotalAmount:             types.NewAmount(int64(3333 * (i + 1))),
			ImmediateReleasePercent: uint8(5 * i),
			CliffDuration:           time.Duration(i) * month,
			VestingDuration:         7 * month,
		})
	}

	for range 10 {
		clk.Advance(month - 17*time.Hour)
		for _, b := range beneficiaries {
			claimAll(t, v, b)
		}

		total := balance(t, v, vesting.DefaultFundingPool)
		for _, b := range beneficiaries {
			total = total.Add(balance(t, v, b))
		}
		assertAmount(t, 50_000, total)
	}

	for i, b := range beneficiaries {
		assertAmount(t, int64(3333*(i+1)), balance(t, v, b))
	}
}

func TestCheckSolvency(t *testing.T) {
	rec := &recorder{}
	v, clk := newEngine(t, vesting.WithPlugin(rec))
	ctx := context.Background()
	fund(t, v, 1000)

	addSchedule(t, v, vesting.ScheduleRequest{Beneficiary: "vic", TotalAmount: types.NewAmount(1000), ImmediateReleasePercent: 10, VestingDuration: month})

	rep, err := v.CheckSolvency(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Solvent())
	assertAmount(t, 900, rep.Obligations)
	assertAmount(t, 900, rep.Balance)
	assert.Equal(t, 1, rep.Beneficiaries)
	assert.Equal(t, 1, rep.Schedules)

	addSchedule(t, v, vesting.ScheduleRequest{Beneficiary: "wes", TotalAmount: types.NewAmount(600), VestingDuration: month})
	rep, err = v.CheckSolvency(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Solvent())
	assertAmount(t, 600, rep.Shortfall())
	assert.Len(t, rec.underfunded(), 1)

	clk.Advance(month)
	claimAll(t, v, "vic")
	obligations, _, _, err := v.Obligations(ctx)
	require.NoError(t, err)
	assertAmount(t, 600, obligations)
}

func TestSolvencyMonitor(t *testing.T) {
	rec := &recorder{}
	v, _ := newEngine(t, vesting.WithPlugin(rec), vesting.WithSolvencySchedule("@every 1s"))
	ctx := context.Background()

	fund(t, v, 10)
	addSchedule(t, v, vesting.ScheduleRequest{Beneficiary: "xena", TotalAmount: types.NewAmount(5), VestingDuration: month})

	// Drain the pool below what xena is owed.
	require.NoError(t, v.Store().Transfer(ctx, &token.Transfer{
		From: vesting.DefaultFundingPool, To: "elsewhere", Amount: types.NewAmount(8),
	}))

	assert.Eventually(t, func() bool { return len(rec.underfunded()) > 0 }, 5*time.Second, 50*time.Millisecond)
}

// ──────────────────────────────────────────────────
// Lifecycle and plugins
// ──────────────────────────────────────────────────

func TestStartTwice(t *testing.T) {
	v, _ := newEngine(t)
	assert.ErrorIs(t, v.Start(context.Background()), vesting.ErrAlreadyStarted)
}

func TestStartWithoutStore(t *testing.T) {
	v := vesting.New(nil, vesting.WithLogger(discard()))
	assert.ErrorIs(t, v.Start(context.Background()), vesting.ErrNoStore)
}

func TestStartBadSolvencySchedule(t *testing.T) {
	v := vesting.New(memory.New(), vesting.WithLogger(discard()), vesting.WithSolvencySchedule("every tuesday"))
	assert.Error(t, v.Start(context.Background()))
}

func TestPluginHooks(t *testing.T) {
	rec := &recorder{}
	v, clk := newEngine(t, vesting.WithPlugin(rec))
	ctx := context.Background()
	fund(t, v, 10_000)

	s := addSchedule(t, v, vesting.ScheduleRequest{
		Beneficiary:             "yara",
		TotalAmount:             types.NewAmount(1000),
		ImmediateReleasePercent: 50,
		VestingDuration:         month,
	})

	_, err := v.Claim(ctx, "yara")
	require.ErrorIs(t, err, vesting.ErrNothingToClaim)

	clk.Advance(month)
	r, err := v.Claim(ctx, "yara")
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, rec.initialized)
	require.Len(t, rec.created, 1)
	assert.Equal(t, s.ID, rec.created[0].ID)
	require.Len(t, rec.released, 1)
	assertAmount(t, 500, rec.released[0].Amount)
	require.Len(t, rec.claimed, 1)
	assert.Equal(t, r.ID, rec.claimed[0].ID)
	require.Len(t, rec.rejected, 1)
	assert.ErrorIs(t, rec.rejected[0], vesting.ErrNothingToClaim)
}

type recorder struct {
	mu          sync.Mutex
	initialized bool
	created     []*schedule.Schedule
	released    []*token.Transfer
	claimed     []*claim.Receipt
	rejected    []error
	reports     []*funding.Report
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnInit(context.Context, any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = true
	return nil
}

func (r *recorder) OnScheduleCreated(_ context.Context, s *schedule.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, s)
	return nil
}

func (r *recorder) OnImmediateRelease(_ context.Context, _ *schedule.Schedule, t *token.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, t)
	return nil
}

func (r *recorder) OnClaimed(_ context.Context, rc *claim.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimed = append(r.claimed, rc)
	return nil
}

func (r *recorder) OnClaimRejected(_ context.Context, _ string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, err)
	return nil
}

func (r *recorder) OnUnderfunded(_ context.Context, rep *funding.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return nil
}

func (r *recorder) underfunded() []*funding.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*funding.Report(nil), r.reports...)
}
