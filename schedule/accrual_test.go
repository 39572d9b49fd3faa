package schedule

import (
	"testing"
	"time"

	"github.com/xraph/vesting/types"
)

const month = 30 * 24 * time.Hour

var start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func tokens(n int64) types.Amount { return types.Units(n, 18) }

func newSchedule(total types.Amount, pct uint8, lock, cliff, vesting time.Duration) *Schedule {
	return &Schedule{
		Beneficiary:             "0xbeneficiary",
		TotalAmount:             total,
		ImmediateReleasePercent: pct,
		LockDuration:            lock,
		CliffDuration:           cliff,
		VestingDuration:         vesting,
		StartTime:               start,
	}
}

func TestImmediateReleaseAmount(t *testing.T) {
	tests := []struct {
		total types.Amount
		pct   uint8
		want  string
	}{
		{types.NewAmount(10000), 10, "1000"},
		{types.NewAmount(10000), 0, "0"},
		{types.NewAmount(10000), 100, "10000"},
		{types.NewAmount(999), 33, "329"},
		{tokens(10000), 10, tokens(1000).String()},
	}

	for _, tt := range tests {
		s := newSchedule(tt.total, tt.pct, 0, 0, 0)
		if got := s.ImmediateReleaseAmount().String(); got != tt.want {
			t.Errorf("%s @ %d%%: got %s, want %s", tt.total, tt.pct, got, tt.want)
		}
		if got := s.RemainingPrincipal().Add(s.ImmediateReleaseAmount()); !got.Equal(tt.total) {
			t.Errorf("immediate + remaining = %s, want %s", got, tt.total)
		}
	}
}

func TestElapsedSinceUnlock(t *testing.T) {
	s := newSchedule(tokens(1), 0, 2*month, 0, month)

	tests := []struct {
		name string
		at   time.Time
		want time.Duration
	}{
		{"before start", start.Add(-time.Hour), 0},
		{"at start", start, 0},
		{"inside lock", start.Add(month), 0},
		{"at unlock", start.Add(2 * month), 0},
		{"after unlock", start.Add(2*month + time.Hour), time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ElapsedSinceUnlock(tt.at); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVestedPrincipal(t *testing.T) {
	tests := []struct {
		name string
		s    *Schedule
		at   time.Duration
		want types.Amount
	}{
		{"locked", newSchedule(tokens(24000), 0, 24*month, 0, 24*month), 12 * month, types.Zero()},
		{"one month into ramp", newSchedule(tokens(24000), 0, 24*month, 0, 24*month), 25 * month, tokens(1000)},
		{"ramp end", newSchedule(tokens(24000), 0, 24*month, 0, 24*month), 48 * month, tokens(24000)},
		{"far past ramp", newSchedule(tokens(24000), 0, 24*month, 0, 24*month), 480 * month, tokens(24000)},
		{"accrues during cliff", newSchedule(tokens(24000), 0, 0, 24*month, 24*month), 12 * month, tokens(6000)},
		{"excludes immediate release", newSchedule(tokens(10000), 10, 0, 2*month, 4*month), 3 * month, tokens(4500)},
		{"floors", newSchedule(types.NewAmount(10), 0, 0, 0, 3*time.Second), time.Second, types.NewAmount(3)},
		{"empty window at unlock", newSchedule(tokens(500), 0, month, 0, 0), month, types.Zero()},
		{"empty window after unlock", newSchedule(tokens(500), 0, month, 0, 0), month + time.Nanosecond, tokens(500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.s.VestedPrincipal(start.Add(tt.at))
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClaimableGate(t *testing.T) {
	s := newSchedule(tokens(10000), 10, month, 2*month, 4*month)

	for at := time.Duration(0); at < 3*month; at += 6 * time.Hour {
		if got := s.Claimable(start.Add(at)); !got.IsZero() {
			t.Fatalf("claimable at %v before cliff: got %s", at, got)
		}
	}

	if s.CliffReached(start.Add(3*month - time.Nanosecond)) {
		t.Error("cliff reached one nanosecond early")
	}
	if !s.CliffReached(start.Add(3 * month)) {
		t.Error("cliff not reached at cliff time")
	}

	// At the cliff the whole cliff-period accrual is credited at once.
	if got := s.Claimable(start.Add(3 * month)); !got.Equal(tokens(3000)) {
		t.Errorf("claimable at cliff: got %s, want %s", got, tokens(3000))
	}
}

func TestClaimableSubtractsClaimed(t *testing.T) {
	s := newSchedule(tokens(24000), 0, 24*month, 0, 24*month)
	s.ClaimedAmount = tokens(1000)

	if got := s.Claimable(start.Add(26 * month)); !got.Equal(tokens(1000)) {
		t.Errorf("got %s, want %s", got, tokens(1000))
	}
	if got := s.Claimable(start.Add(25 * month)); !got.IsZero() {
		t.Errorf("expected nothing claimable right after a claim, got %s", got)
	}

	s.ClaimedAmount = tokens(24000)
	if !s.FullyClaimed() {
		t.Error("expected fully claimed")
	}
	if got := s.Claimable(start.Add(100 * month)); !got.IsZero() {
		t.Errorf("expected nothing claimable when fully claimed, got %s", got)
	}
}

func TestMonotonicAndCapped(t *testing.T) {
	schedules := []*Schedule{
		newSchedule(tokens(24000), 0, 24*month, 0, 24*month),
		newSchedule(tokens(10000), 10, 0, 2*month, 4*month),
		newSchedule(types.NewAmount(7), 33, time.Hour, 5*time.Hour, 11*time.Hour),
		newSchedule(tokens(1), 100, 0, 0, 0),
		newSchedule(types.MustParseAmount("1000000000000000000000000001"), 1, 0, 0, 7*month),
	}

	for i, s := range schedules {
		prev := types.Zero()
		end := s.LockDuration + s.RampWindow() + month
		step := end / 97
		if step == 0 {
			step = time.Nanosecond
		}
		for at := -step; at <= end; at += step {
			got := s.TotalVested(start.Add(at))
			if got.LessThan(prev) {
				t.Fatalf("schedule %d not monotonic at %v: %s < %s", i, at, got, prev)
			}
			if got.GreaterThan(s.TotalAmount) {
				t.Fatalf("schedule %d exceeds total at %v: %s > %s", i, at, got, s.TotalAmount)
			}
			prev = got
		}
		if !s.TotalVested(start.Add(end)).Equal(s.TotalAmount) {
			t.Errorf("schedule %d does not fully vest: %s", i, s.TotalVested(start.Add(end)))
		}
	}
}

func TestScenarioLockOnly(t *testing.T) {
	s := newSchedule(tokens(24000), 0, 24*month, 0, 24*month)

	if got := s.Claimable(start.Add(25 * month)); !got.Equal(tokens(1000)) {
		t.Errorf("25 months: got %s", got.Format(18))
	}
	if got := s.Claimable(start.Add(26 * month)); !got.Equal(tokens(2000)) {
		t.Errorf("26 months: got %s", got.Format(18))
	}
	if got := s.Claimable(start.Add(48 * month)); !got.Equal(tokens(24000)) {
		t.Errorf("48 months: got %s", got.Format(18))
	}
}

func TestScenarioTwoSchedules(t *testing.T) {
	list := []*Schedule{
		newSchedule(tokens(24000), 0, 24*month, 0, 24*month),
		newSchedule(tokens(24000), 0, 0, 24*month, 24*month),
	}

	if got := TotalClaimable(list, start.Add(25*month)); !got.Equal(tokens(13500)) {
		t.Errorf("25 months: got %s", got.Format(18))
	}
	if got := TotalClaimable(list, start.Add(48*month)); !got.Equal(tokens(48000)) {
		t.Errorf("48 months: got %s", got.Format(18))
	}
}

func TestSummarize(t *testing.T) {
	a := newSchedule(tokens(10000), 10, 0, 2*month, 4*month)
	b := newSchedule(tokens(24000), 0, 24*month, 0, 24*month)
	a.ClaimedAmount = tokens(2000)

	now := start.Add(3 * month)
	sum := Summarize("0xbeneficiary", []*Schedule{a, b}, now)

	if sum.Schedules != 2 {
		t.Errorf("schedules: got %d", sum.Schedules)
	}
	checks := map[string][2]types.Amount{
		"total":     {sum.TotalAmount, tokens(34000)},
		"immediate": {sum.ImmediateReleased, tokens(1000)},
		"vested":    {sum.TotalVested, tokens(5500)},
		"claimed":   {sum.Claimed, tokens(2000)},
		"claimable": {sum.Claimable, tokens(2500)},
		"locked":    {sum.Locked, tokens(28500)},
	}
	for name, c := range checks {
		if !c[0].Equal(c[1]) {
			t.Errorf("%s: got %s, want %s", name, c[0].Format(18), c[1].Format(18))
		}
	}
	if sum.NextCliff == nil || !sum.NextCliff.Equal(start.Add(24*month)) {
		t.Errorf("next cliff: got %v", sum.NextCliff)
	}
}

func TestTimeline(t *testing.T) {
	s := newSchedule(tokens(1), 0, month, 2*month, 3*month)

	if !s.UnlockTime().Equal(start.Add(month)) {
		t.Errorf("unlock: %v", s.UnlockTime())
	}
	if !s.CliffTime().Equal(start.Add(3 * month)) {
		t.Errorf("cliff: %v", s.CliffTime())
	}
	if !s.EndTime().Equal(start.Add(6 * month)) {
		t.Errorf("end: %v", s.EndTime())
	}
}

func TestClone(t *testing.T) {
	s := newSchedule(tokens(1), 0, 0, 0, 0)
	s.Metadata = map[string]string{"round": "seed"}

	cp := s.Clone()
	cp.Metadata["round"] = "series-a"
	cp.ClaimedAmount = tokens(1)

	if s.Metadata["round"] != "seed" || !s.ClaimedAmount.IsZero() {
		t.Error("clone shares state with the original")
	}
}
