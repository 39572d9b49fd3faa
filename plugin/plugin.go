// Package plugin provides the hook system of the vesting engine.
// A plugin implements Plugin plus any of the hook interfaces below; the
// registry discovers which ones at registration time.
package plugin

import (
	"context"

	"github.com/xraph/vesting/claim"
	"github.com/xraph/vesting/funding"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *vesting.Vesting.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Schedule hooks
// ──────────────────────────────────────────────────

// OnScheduleCreated is called after a schedule has been committed.
type OnScheduleCreated interface {
	Plugin
	OnScheduleCreated(ctx context.Context, s *schedule.Schedule) error
}

// OnImmediateRelease is called after the immediate-release transfer of a
// new schedule has been committed.
type OnImmediateRelease interface {
	Plugin
	OnImmediateRelease(ctx context.Context, s *schedule.Schedule, t *token.Transfer) error
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// OnClaimed is called after a claim has been committed.
type OnClaimed interface {
	Plugin
	OnClaimed(ctx context.Context, r *claim.Receipt) error
}

// OnClaimRejected is called when a claim fails, including the common
// nothing-to-claim outcome.
type OnClaimRejected interface {
	Plugin
	OnClaimRejected(ctx context.Context, beneficiary string, err error) error
}

// ──────────────────────────────────────────────────
// Funding hooks
// ──────────────────────────────────────────────────

// OnUnderfunded is called when a solvency check finds the funding pool
// short of its outstanding obligations.
type OnUnderfunded interface {
	Plugin
	OnUnderfunded(ctx context.Context, r *funding.Report) error
}
