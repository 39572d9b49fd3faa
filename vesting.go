package vesting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/vesting/address"
	"github.com/xraph/vesting/auth"
	"github.com/xraph/vesting/lock"
	"github.com/xraph/vesting/plugin"
	"github.com/xraph/vesting/store"
)

// DefaultFundingPool is the account schedules are paid out of unless
// WithFundingPool says otherwise.
const DefaultFundingPool = "vesting-pool"

// Vesting is the vesting ledger engine.
type Vesting struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	authorizer  auth.Authorizer
	addresses   address.Validator
	locker      lock.Locker
	now         func() time.Time
	fundingPool string
	skipMigrate bool

	// Solvency monitor
	solvencySpec    string
	solvencyTimeout time.Duration
	cron            *cron.Cron

	mu      sync.Mutex
	started bool
}

// New creates a new Vesting engine over s.
func New(s store.Store, opts ...Option) *Vesting {
	v := &Vesting{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		authorizer:      auth.DenyAll{},
		addresses:       address.Any(),
		locker:          lock.NewMemory(),
		now:             time.Now,
		fundingPool:     DefaultFundingPool,
		solvencyTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Option configures a Vesting instance.
type Option func(*Vesting)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vesting) {
		v.logger = logger
		v.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(v *Vesting) {
		_ = v.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds how long any single plugin hook may run.
func WithPluginTimeout(d time.Duration) Option {
	return func(v *Vesting) {
		v.plugins.WithTimeout(d)
	}
}

// WithAuthorizer sets the authorizer that guards schedule creation and
// pool funding. Without one every credential is denied.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(v *Vesting) {
		v.authorizer = a
	}
}

// WithAddressValidator sets how beneficiary identifiers are validated and
// normalized. The default accepts any non-blank identifier as is.
func WithAddressValidator(a address.Validator) Option {
	return func(v *Vesting) {
		v.addresses = a
	}
}

// WithLocker sets the lock taken around mutations of one beneficiary.
// Use a shared locker when several engines write to the same store.
func WithLocker(l lock.Locker) Option {
	return func(v *Vesting) {
		v.locker = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Vesting) {
		v.now = now
	}
}

// WithFundingPool sets the account that schedules are paid out of.
func WithFundingPool(account string) Option {
	return func(v *Vesting) {
		v.fundingPool = account
	}
}

// WithSolvencySchedule enables the background solvency check on a cron
// spec such as "@every 5m" or "0 */15 * * * *" (seconds field optional).
func WithSolvencySchedule(spec string) Option {
	return func(v *Vesting) {
		v.solvencySpec = spec
	}
}

// WithoutMigrate makes Start skip store migrations. Use it when the schema
// is managed outside the engine.
func WithoutMigrate() Option {
	return func(v *Vesting) {
		v.skipMigrate = true
	}
}

// Start migrates the store, initializes plugins and starts the solvency
// monitor if one is configured.
func (v *Vesting) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.started {
		return ErrAlreadyStarted
	}
	if v.store == nil {
		return ErrNoStore
	}

	if !v.skipMigrate {
		if err := v.store.Migrate(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}
	}

	v.plugins.EmitInit(ctx, v)

	if v.solvencySpec != "" {
		if err := v.startSolvencyMonitor(); err != nil {
			return err
		}
	}

	v.started = true
	v.logger.Info("vesting started",
		"funding_pool", v.fundingPool,
		"plugins", v.plugins.Count(),
		"solvency_schedule", v.solvencySpec,
	)

	return nil
}

// Stop halts the solvency monitor, shuts plugins down and closes the store.
func (v *Vesting) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cron != nil {
		<-v.cron.Stop().Done()
		v.cron = nil
	}

	v.plugins.EmitShutdown(context.Background())
	v.started = false

	if v.store == nil {
		return nil
	}
	return v.store.Close()
}

// Store returns the underlying store.
func (v *Vesting) Store() store.Store { return v.store }

// Plugins returns the plugin registry.
func (v *Vesting) Plugins() *plugin.Registry { return v.plugins }

// Logger returns the engine logger.
func (v *Vesting) Logger() *slog.Logger { return v.logger }

// FundingPool returns the account schedules are paid out of.
func (v *Vesting) FundingPool() string { return v.fundingPool }

// Now returns the engine's current time in UTC.
func (v *Vesting) Now() time.Time { return v.now().UTC() }

// lockBeneficiary serializes mutations of one beneficiary's schedules.
func (v *Vesting) lockBeneficiary(ctx context.Context, beneficiary string) (lock.Unlock, error) {
	unlock, err := v.locker.Lock(ctx, "beneficiary:"+beneficiary)
	if err != nil {
		return nil, fmt.Errorf("vesting: lock %s: %w", beneficiary, err)
	}
	return unlock, nil
}

// canonical returns the normalized spelling of a beneficiary, or the input
// unchanged if the validator rejects it. Lookups of unknown spellings then
// simply find nothing.
func (v *Vesting) canonical(beneficiary string) string {
	if norm, err := v.addresses.Normalize(beneficiary); err == nil {
		return norm
	}
	return beneficiary
}
