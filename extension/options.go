package extension

import (
	"time"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/observability"
	"github.com/xraph/vesting/plugin"
	"github.com/xraph/vesting/store"
)

// Option configures the vesting Forge extension.
type Option func(*Extension)

// WithStore sets the store for the vesting engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithVestingOption passes a vesting.Option through to the underlying engine.
// Options given here are applied after the config-derived ones.
func WithVestingOption(opt vesting.Option) Option {
	return func(e *Extension) {
		e.vestingOpts = append(e.vestingOpts, opt)
	}
}

// WithPlugin registers a vesting plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.vestingOpts = append(e.vestingOpts, vesting.WithPlugin(p))
	}
}

// WithMetrics registers the observability plugin on factory.
func WithMetrics(factory observability.MetricFactory, opts ...observability.Option) Option {
	return func(e *Extension) {
		e.vestingOpts = append(e.vestingOpts,
			vesting.WithPlugin(observability.NewMetricsExtension(factory, opts...)))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithFundingPool sets the account schedules are paid out of.
func WithFundingPool(account string) Option {
	return func(e *Extension) { e.config.FundingPool = account }
}

// WithSolvencySchedule sets the cron spec of the solvency check.
func WithSolvencySchedule(spec string) Option {
	return func(e *Extension) { e.config.SolvencySchedule = spec }
}

// WithAddressFormat selects the beneficiary validator by name.
func WithAddressFormat(format string) Option {
	return func(e *Extension) { e.config.AddressFormat = format }
}

// WithAdminJWTSecret enables HS256 admin tokens for subject.
func WithAdminJWTSecret(subject, secret string) Option {
	return func(e *Extension) {
		e.config.AdminSubject = subject
		e.config.AdminJWTSecret = secret
	}
}

// WithAdminKeyHash enables a bcrypt-hashed admin key for subject.
func WithAdminKeyHash(subject, hash string) Option {
	return func(e *Extension) {
		e.config.AdminSubject = subject
		e.config.AdminKeyHash = hash
	}
}

// WithRedisLock shares the beneficiary lock through Redis at addr.
func WithRedisLock(addr string) Option {
	return func(e *Extension) { e.config.RedisAddr = addr }
}

// WithAMQP publishes lifecycle events to the RabbitMQ broker at url.
func WithAMQP(url string) Option {
	return func(e *Extension) { e.config.AMQPURL = url }
}

// WithPluginTimeout bounds a single plugin hook.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension will auto-construct the appropriate store backend (postgres/sqlite/mongo)
// based on the grove driver type. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
