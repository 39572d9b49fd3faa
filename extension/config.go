package extension

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Address validator names accepted by Config.AddressFormat.
const (
	AddressAny          = "any"
	AddressEVM          = "evm"
	AddressSolana       = "solana"
	AddressSolanaWallet = "solana_wallet"
)

// Config holds the vesting extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.vesting" or "vesting" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// FundingPool is the account schedules are paid out of (default: "vesting-pool").
	FundingPool string `json:"funding_pool" mapstructure:"funding_pool" yaml:"funding_pool"`

	// SolvencySchedule is the cron spec of the background solvency check
	// (default: "@every 1m"). Set DisableSolvencyMonitor to turn it off.
	SolvencySchedule string `json:"solvency_schedule" mapstructure:"solvency_schedule" yaml:"solvency_schedule"`

	// DisableSolvencyMonitor turns the background solvency check off.
	DisableSolvencyMonitor bool `json:"disable_solvency_monitor" mapstructure:"disable_solvency_monitor" yaml:"disable_solvency_monitor"`

	// AddressFormat selects the beneficiary validator: any, evm, solana or
	// solana_wallet (default: "any").
	AddressFormat string `json:"address_format" mapstructure:"address_format" yaml:"address_format"`

	// AdminSubject is the identity allowed to create schedules and fund
	// the pool (default: "admin").
	AdminSubject string `json:"admin_subject" mapstructure:"admin_subject" yaml:"admin_subject"`

	// AdminKeyHash is a bcrypt hash of the admin API key.
	AdminKeyHash string `json:"admin_key_hash" mapstructure:"admin_key_hash" yaml:"admin_key_hash"`

	// AdminJWTSecret enables HS256 admin tokens. Takes precedence over AdminKeyHash.
	AdminJWTSecret string `json:"admin_jwt_secret" mapstructure:"admin_jwt_secret" yaml:"admin_jwt_secret"`

	// RedisAddr enables the Redis beneficiary lock so several instances
	// can share one store.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`

	// AMQPURL enables publishing lifecycle events to RabbitMQ.
	AMQPURL string `json:"amqp_url" mapstructure:"amqp_url" yaml:"amqp_url"`

	// AMQPExchange is the exchange events go to (default: "vesting.events").
	AMQPExchange string `json:"amqp_exchange" mapstructure:"amqp_exchange" yaml:"amqp_exchange"`

	// PluginTimeout bounds a single plugin hook (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// LogLevel is the engine log level: debug, info, warn or error (default: "info").
	LogLevel string `json:"log_level" mapstructure:"log_level" yaml:"log_level"`

	// LogFormat is text or json. Empty picks text on a terminal and json otherwise.
	LogFormat string `json:"log_format" mapstructure:"log_format" yaml:"log_format"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and auto-constructs
	// the appropriate store based on the driver type (pg/sqlite/mongo).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FundingPool:      "vesting-pool",
		SolvencySchedule: "@every 1m",
		AddressFormat:    AddressAny,
		AdminSubject:     "admin",
		AMQPExchange:     "vesting.events",
		PluginTimeout:    5 * time.Second,
		LogLevel:         "info",
	}
}

var solvencyParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports configuration the engine cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.AddressFormat {
	case "", AddressAny, AddressEVM, AddressSolana, AddressSolanaWallet:
	default:
		errs = append(errs, fmt.Errorf("unknown address_format %q", c.AddressFormat))
	}

	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}

	if !c.DisableSolvencyMonitor && c.SolvencySchedule != "" {
		if _, err := solvencyParser.Parse(c.SolvencySchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid solvency_schedule %q: %w", c.SolvencySchedule, err))
		}
	}

	if c.PluginTimeout < 0 {
		errs = append(errs, errors.New("plugin_timeout must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("vesting: invalid extension config: %w", err)
	}
	return nil
}
