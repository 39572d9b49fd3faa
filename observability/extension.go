// Package observability provides a metrics extension for the vesting engine
// that records lifecycle event counts through a caller-supplied MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/claim"
	"github.com/xraph/vesting/funding"
	"github.com/xraph/vesting/plugin"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnScheduleCreated  = (*MetricsExtension)(nil)
	_ plugin.OnImmediateRelease = (*MetricsExtension)(nil)
	_ plugin.OnClaimed          = (*MetricsExtension)(nil)
	_ plugin.OnClaimRejected    = (*MetricsExtension)(nil)
	_ plugin.OnUnderfunded      = (*MetricsExtension)(nil)
)

// DefaultDecimals is the token precision used to report amounts in whole
// tokens when WithDecimals is not given.
const DefaultDecimals int32 = 18

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// Gauge interface for metric gauges.
type Gauge interface {
	Set(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// Option configures a MetricsExtension.
type Option func(*MetricsExtension)

// WithDecimals sets the token precision used to convert amounts to whole
// tokens.
func WithDecimals(decimals int32) Option {
	return func(m *MetricsExtension) { m.decimals = decimals }
}

// MetricsExtension records system-wide vesting metrics.
// Register it as a vesting plugin.
type MetricsExtension struct {
	decimals int32

	// Schedule metrics
	SchedulesCreated  Counter
	ScheduledTokens   Counter
	ImmediateReleases Counter
	ReleasedTokens    Counter

	// Claim metrics
	Claims         Counter
	ClaimedTokens  Counter
	ClaimAmount    Histogram
	ClaimSchedules Histogram
	NothingToClaim Counter
	ClaimFailures  Counter

	// Funding metrics
	Underfunded   Counter
	PoolShortfall Gauge
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory, opts ...Option) *MetricsExtension {
	m := &MetricsExtension{
		decimals: DefaultDecimals,

		SchedulesCreated:  factory.Counter("vesting.schedule.created"),
		ScheduledTokens:   factory.Counter("vesting.schedule.tokens"),
		ImmediateReleases: factory.Counter("vesting.immediate_release.count"),
		ReleasedTokens:    factory.Counter("vesting.immediate_release.tokens"),

		Claims:         factory.Counter("vesting.claim.count"),
		ClaimedTokens:  factory.Counter("vesting.claim.tokens"),
		ClaimAmount:    factory.Histogram("vesting.claim.amount_tokens"),
		ClaimSchedules: factory.Histogram("vesting.claim.schedules"),
		NothingToClaim: factory.Counter("vesting.claim.nothing_to_claim"),
		ClaimFailures:  factory.Counter("vesting.claim.failures"),

		Underfunded:   factory.Counter("vesting.pool.underfunded"),
		PoolShortfall: factory.Gauge("vesting.pool.shortfall_tokens"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Schedule lifecycle hooks
// ──────────────────────────────────────────────────

// OnScheduleCreated implements plugin.OnScheduleCreated.
func (m *MetricsExtension) OnScheduleCreated(_ context.Context, s *schedule.Schedule) error {
	m.SchedulesCreated.Inc()
	m.ScheduledTokens.Add(s.TotalAmount.Tokens(m.decimals))
	return nil
}

// OnImmediateRelease implements plugin.OnImmediateRelease.
func (m *MetricsExtension) OnImmediateRelease(_ context.Context, _ *schedule.Schedule, t *token.Transfer) error {
	m.ImmediateReleases.Inc()
	m.ReleasedTokens.Add(t.Amount.Tokens(m.decimals))
	return nil
}

// ──────────────────────────────────────────────────
// Claim lifecycle hooks
// ──────────────────────────────────────────────────

// OnClaimed implements plugin.OnClaimed.
func (m *MetricsExtension) OnClaimed(_ context.Context, r *claim.Receipt) error {
	tokens := r.Amount.Tokens(m.decimals)
	m.Claims.Inc()
	m.ClaimedTokens.Add(tokens)
	m.ClaimAmount.Observe(tokens)
	m.ClaimSchedules.Observe(float64(len(r.Portions)))
	return nil
}

// OnClaimRejected implements plugin.OnClaimRejected.
func (m *MetricsExtension) OnClaimRejected(_ context.Context, _ string, err error) error {
	if errors.Is(err, vesting.ErrNothingToClaim) {
		m.NothingToClaim.Inc()
		return nil
	}
	m.ClaimFailures.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Funding lifecycle hooks
// ──────────────────────────────────────────────────

// OnUnderfunded implements plugin.OnUnderfunded.
func (m *MetricsExtension) OnUnderfunded(_ context.Context, r *funding.Report) error {
	m.Underfunded.Inc()
	m.PoolShortfall.Set(r.Shortfall().Tokens(m.decimals))
	return nil
}
