// Package audithook bridges vesting lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/claim"
	"github.com/xraph/vesting/funding"
	"github.com/xraph/vesting/plugin"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnScheduleCreated  = (*Extension)(nil)
	_ plugin.OnImmediateRelease = (*Extension)(nil)
	_ plugin.OnClaimed          = (*Extension)(nil)
	_ plugin.OnClaimRejected    = (*Extension)(nil)
	_ plugin.OnUnderfunded      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges vesting lifecycle events to an audit trail backend.
type Extension struct {
	recorder   Recorder
	enabled    map[string]bool // nil = all enabled
	recordNoop bool
	logger     *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Schedule lifecycle hooks
// ──────────────────────────────────────────────────

// OnScheduleCreated implements plugin.OnScheduleCreated.
func (e *Extension) OnScheduleCreated(ctx context.Context, s *schedule.Schedule) error {
	return e.record(ctx, ActionScheduleCreated, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, s.ID.String(), CategoryVesting, nil,
		"beneficiary", s.Beneficiary,
		"index", s.Index,
		"total_amount", s.TotalAmount.String(),
		"immediate_release_percent", s.ImmediateReleasePercent,
		"start_time", s.StartTime,
		"lock_duration", s.LockDuration.String(),
		"cliff_duration", s.CliffDuration.String(),
		"vesting_duration", s.VestingDuration.String(),
	)
}

// OnImmediateRelease implements plugin.OnImmediateRelease.
func (e *Extension) OnImmediateRelease(ctx context.Context, s *schedule.Schedule, t *token.Transfer) error {
	return e.record(ctx, ActionImmediateRelease, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, s.ID.String(), CategoryPayout, nil,
		"beneficiary", s.Beneficiary,
		"transfer_id", t.ID.String(),
		"amount", t.Amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Claim lifecycle hooks
// ──────────────────────────────────────────────────

// OnClaimed implements plugin.OnClaimed.
func (e *Extension) OnClaimed(ctx context.Context, r *claim.Receipt) error {
	kv := []any{
		"beneficiary", r.Beneficiary,
		"amount", r.Amount.String(),
		"schedules", len(r.Portions),
	}
	if r.Transfer != nil {
		kv = append(kv, "transfer_id", r.Transfer.ID.String())
	}
	return e.record(ctx, ActionClaimed, SeverityInfo, OutcomeSuccess,
		ResourceClaim, r.ID.String(), CategoryPayout, nil,
		kv...,
	)
}

// OnClaimRejected implements plugin.OnClaimRejected.
func (e *Extension) OnClaimRejected(ctx context.Context, beneficiary string, err error) error {
	severity := SeverityWarning
	switch {
	case errors.Is(err, vesting.ErrNothingToClaim):
		if !e.recordNoop {
			return nil
		}
		severity = SeverityInfo
	case errors.Is(err, vesting.ErrInsufficientFunding):
		severity = SeverityCritical
	}

	return e.record(ctx, ActionClaimRejected, severity, OutcomeFailure,
		ResourceClaim, "", CategoryPayout, err,
		"beneficiary", beneficiary,
	)
}

// ──────────────────────────────────────────────────
// Funding lifecycle hooks
// ──────────────────────────────────────────────────

// OnUnderfunded implements plugin.OnUnderfunded.
func (e *Extension) OnUnderfunded(ctx context.Context, r *funding.Report) error {
	return e.record(ctx, ActionUnderfunded, SeverityCritical, OutcomeFailure,
		ResourcePool, r.Pool, CategoryFunding, nil,
		"balance", r.Balance.String(),
		"obligations", r.Obligations.String(),
		"shortfall", r.Shortfall().String(),
		"beneficiaries", r.Beneficiaries,
		"schedules", r.Schedules,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
