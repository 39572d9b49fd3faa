// Package extension provides the Forge extension adapter for Vesting.
//
// It implements the forge.Extension interface to integrate the vesting
// engine into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.vesting" or "vesting" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/vessel"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/address"
	amqphook "github.com/xraph/vesting/amqp_hook"
	"github.com/xraph/vesting/auth"
	"github.com/xraph/vesting/internal/logging"
	"github.com/xraph/vesting/lock/redislock"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/store/memory"
	"github.com/xraph/vesting/store/mongo"
	"github.com/xraph/vesting/store/postgres"
	"github.com/xraph/vesting/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "vesting"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Token vesting ledger with scheduled accrual and claims"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Vesting as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *vesting.Vesting
	store       store.Store
	vestingOpts []vesting.Option
	useGrove    bool

	redis *redis.Client
}

// New creates a new vesting Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Vesting instance.
// This is nil until Register is called.
func (e *Extension) Engine() *vesting.Vesting { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration,
// initializes the vesting engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}
	if err := e.config.Validate(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := e.resolveStore(fapp)
		if err != nil {
			return err
		}
		e.store = s
	}

	opts, err := e.buildVestingOpts()
	if err != nil {
		return err
	}

	e.engine = vesting.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*vesting.Vesting, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("vesting: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.engine != nil {
		errs = append(errs, e.engine.Stop())
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
		e.redis = nil
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("vesting: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		return e.redis.Ping(ctx).Err()
	}
	return nil
}

// resolveStore picks the store backend. A grove.DB from the container is
// used when one was asked for; otherwise the in-memory store.
func (e *Extension) resolveStore(fapp forge.App) (store.Store, error) {
	if !e.useGrove && e.config.GroveDatabase == "" {
		return memory.New(), nil
	}

	var (
		db  *grove.DB
		err error
	)
	if e.config.GroveDatabase != "" {
		db, err = vessel.InjectNamed[*grove.DB](fapp.Container(), e.config.GroveDatabase)
	} else {
		db, err = vessel.Inject[*grove.DB](fapp.Container())
	}
	if err != nil {
		return nil, fmt.Errorf("vesting: resolve grove database %q: %w", e.config.GroveDatabase, err)
	}

	return storeForDriver(db)
}

// storeForDriver builds the store matching db's driver.
func storeForDriver(db *grove.DB) (store.Store, error) {
	switch drv := db.Driver().(type) {
	case *pgdriver.PgDB:
		return postgres.New(db), nil
	case *sqlitedriver.SqliteDB:
		return sqlite.New(db), nil
	case *mongodriver.MongoDB:
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("vesting: unsupported grove driver %T", drv)
	}
}

// buildVestingOpts constructs vesting.Option values from the resolved config.
func (e *Extension) buildVestingOpts() ([]vesting.Option, error) {
	opts := make([]vesting.Option, 0, len(e.vestingOpts)+8)

	opts = append(opts,
		vesting.WithLogger(logging.New(logging.Options{
			Level:  e.config.LogLevel,
			Format: logging.Format(e.config.LogFormat),
		})),
		vesting.WithFundingPool(e.config.FundingPool),
		vesting.WithPluginTimeout(e.config.PluginTimeout),
	)

	if e.config.DisableMigrate {
		opts = append(opts, vesting.WithoutMigrate())
	}
	if !e.config.DisableSolvencyMonitor && e.config.SolvencySchedule != "" {
		opts = append(opts, vesting.WithSolvencySchedule(e.config.SolvencySchedule))
	}

	authorizer, err := e.buildAuthorizer()
	if err != nil {
		return nil, err
	}
	if authorizer != nil {
		opts = append(opts, vesting.WithAuthorizer(authorizer))
	}

	opts = append(opts, vesting.WithAddressValidator(addressValidator(e.config.AddressFormat)))

	if e.config.RedisAddr != "" {
		e.redis = redis.NewClient(&redis.Options{Addr: e.config.RedisAddr})
		opts = append(opts, vesting.WithLocker(redislock.New(e.redis)))
	}

	if e.config.AMQPURL != "" {
		pub, err := amqphook.Dial(e.config.AMQPURL,
			amqphook.WithExchange(e.config.AMQPExchange),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, vesting.WithPlugin(pub))
	}

	// Pass-through options go last so they win.
	opts = append(opts, e.vestingOpts...)

	return opts, nil
}

// buildAuthorizer returns nil when no admin credential is configured,
// leaving the engine's deny-all default in place.
func (e *Extension) buildAuthorizer() (auth.Authorizer, error) {
	switch {
	case e.config.AdminJWTSecret != "":
		return subjectOnly(e.config.AdminSubject, auth.NewJWTAuthorizer(e.config.AdminJWTSecret)), nil
	case e.config.AdminKeyHash != "":
		a, err := auth.NewKeyAuthorizer(e.config.AdminSubject, e.config.AdminKeyHash)
		if err != nil {
			return nil, fmt.Errorf("vesting: admin key: %w", err)
		}
		return a, nil
	default:
		return nil, nil
	}
}

// subjectOnly narrows next to tokens issued for subject.
func subjectOnly(subject string, next auth.Authorizer) auth.Authorizer {
	return auth.AuthorizerFunc(func(ctx context.Context, cred auth.Credential) (*auth.Identity, error) {
		ident, err := next.Authorize(ctx, cred)
		if err != nil {
			return nil, err
		}
		if subject != "" && ident.Subject != subject {
			return nil, auth.ErrDenied
		}
		return ident, nil
	})
}

func addressValidator(format string) address.Validator {
	switch format {
	case AddressEVM:
		return address.EVM()
	case AddressSolana:
		return address.Solana()
	case AddressSolanaWallet:
		return address.SolanaWallet()
	default:
		return address.Any()
	}
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("vesting: configuration is required but not found in config files; " +
				"ensure 'extensions.vesting' or 'vesting' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("vesting: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("funding_pool", e.config.FundingPool),
		forge.F("solvency_schedule", e.config.SolvencySchedule),
		forge.F("disable_solvency_monitor", e.config.DisableSolvencyMonitor),
		forge.F("address_format", e.config.AddressFormat),
		forge.F("admin_subject", e.config.AdminSubject),
		forge.F("redis", e.config.RedisAddr != ""),
		forge.F("amqp", e.config.AMQPURL != ""),
		forge.F("grove_database", e.config.GroveDatabase),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.vesting", "vesting"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("vesting: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("vesting: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.FundingPool == "" {
		cfg.FundingPool = defaults.FundingPool
	}
	if cfg.SolvencySchedule == "" {
		cfg.SolvencySchedule = defaults.SolvencySchedule
	}
	if cfg.AddressFormat == "" {
		cfg.AddressFormat = defaults.AddressFormat
	}
	if cfg.AdminSubject == "" {
		cfg.AdminSubject = defaults.AdminSubject
	}
	if cfg.AMQPExchange == "" {
		cfg.AMQPExchange = defaults.AMQPExchange
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and
// programmatic bool flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableSolvencyMonitor {
		yamlConfig.DisableSolvencyMonitor = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&yamlConfig.FundingPool, programmaticConfig.FundingPool)
	fill(&yamlConfig.SolvencySchedule, programmaticConfig.SolvencySchedule)
	fill(&yamlConfig.AddressFormat, programmaticConfig.AddressFormat)
	fill(&yamlConfig.AdminSubject, programmaticConfig.AdminSubject)
	fill(&yamlConfig.AdminKeyHash, programmaticConfig.AdminKeyHash)
	fill(&yamlConfig.AdminJWTSecret, programmaticConfig.AdminJWTSecret)
	fill(&yamlConfig.RedisAddr, programmaticConfig.RedisAddr)
	fill(&yamlConfig.AMQPURL, programmaticConfig.AMQPURL)
	fill(&yamlConfig.AMQPExchange, programmaticConfig.AMQPExchange)
	fill(&yamlConfig.LogLevel, programmaticConfig.LogLevel)
	fill(&yamlConfig.LogFormat, programmaticConfig.LogFormat)
	fill(&yamlConfig.GroveDatabase, programmaticConfig.GroveDatabase)

	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
