package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/vesting/claim"
	"github.com/xraph/vesting/funding"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
)

// DefaultTimeout bounds how long a single hook may run.
const DefaultTimeout = 5 * time.Second

// Registry manages registered plugins and dispatches hooks to them.
// Hook lists are built once at registration so dispatch never needs
// reflection.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onScheduleCreated  []OnScheduleCreated
	onImmediateRelease []OnImmediateRelease
	onClaimed          []OnClaimed
	onClaimRejected    []OnClaimRejected
	onUnderfunded      []OnUnderfunded
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnScheduleCreated); ok {
		r.onScheduleCreated = append(r.onScheduleCreated, v)
	}
	if v, ok := p.(OnImmediateRelease); ok {
		r.onImmediateRelease = append(r.onImmediateRelease, v)
	}
	if v, ok := p.(OnClaimed); ok {
		r.onClaimed = append(r.onClaimed, v)
	}
	if v, ok := p.(OnClaimRejected); ok {
		r.onClaimRejected = append(r.onClaimRejected, v)
	}
	if v, ok := p.(OnUnderfunded); ok {
		r.onUnderfunded = append(r.onUnderfunded, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnScheduleCreated", reflect.TypeFor[OnScheduleCreated]()},
	{"OnImmediateRelease", reflect.TypeFor[OnImmediateRelease]()},
	{"OnClaimed", reflect.TypeFor[OnClaimed]()},
	{"OnClaimRejected", reflect.TypeFor[OnClaimRejected]()},
	{"OnUnderfunded", reflect.TypeFor[OnUnderfunded]()},
}

// implementedInterfaces lists the hook interfaces p implements, for logs.
func implementedInterfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	hooks := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", hooks, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	hooks := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", hooks, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitScheduleCreated emits a schedule created event.
func (r *Registry) EmitScheduleCreated(ctx context.Context, s *schedule.Schedule) {
	r.mu.RLock()
	hooks := r.onScheduleCreated
	r.mu.RUnlock()

	emit(ctx, r, "OnScheduleCreated", hooks, func(p OnScheduleCreated) error {
		return p.OnScheduleCreated(ctx, s)
	})
}

// EmitImmediateRelease emits an immediate release event.
func (r *Registry) EmitImmediateRelease(ctx context.Context, s *schedule.Schedule, t *token.Transfer) {
	r.mu.RLock()
	hooks := r.onImmediateRelease
	r.mu.RUnlock()

	emit(ctx, r, "OnImmediateRelease", hooks, func(p OnImmediateRelease) error {
		return p.OnImmediateRelease(ctx, s, t)
	})
}

// EmitClaimed emits a claimed event.
func (r *Registry) EmitClaimed(ctx context.Context, rc *claim.Receipt) {
	r.mu.RLock()
	hooks := r.onClaimed
	r.mu.RUnlock()

	emit(ctx, r, "OnClaimed", hooks, func(p OnClaimed) error { return p.OnClaimed(ctx, rc) })
}

// EmitClaimRejected emits a claim rejected event.
func (r *Registry) EmitClaimRejected(ctx context.Context, beneficiary string, cause error) {
	r.mu.RLock()
	hooks := r.onClaimRejected
	r.mu.RUnlock()

	emit(ctx, r, "OnClaimRejected", hooks, func(p OnClaimRejected) error {
		return p.OnClaimRejected(ctx, beneficiary, cause)
	})
}

// EmitUnderfunded emits an underfunded event.
func (r *Registry) EmitUnderfunded(ctx context.Context, rep *funding.Report) {
	r.mu.RLock()
	hooks := r.onUnderfunded
	r.mu.RUnlock()

	emit(ctx, r, "OnUnderfunded", hooks, func(p OnUnderfunded) error { return p.OnUnderfunded(ctx, rep) })
}

// emit runs call for every hook. Hook failures are logged and never
// reach the operation that triggered them.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, call func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return call(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the vesting pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
