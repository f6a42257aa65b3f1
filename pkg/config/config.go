package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/goliatone/go-config/cfgx"
)

// Config captures module-level configuration knobs. Feature packages
// (vault, validator, fallback, audit, cache) pull from these nested structs.
type Config struct {
	Crypto    CryptoConfig    `mapstructure:"crypto" json:"crypto"`
	Validator ValidatorConfig `mapstructure:"validator" json:"validator"`
	Fallback  FallbackConfig  `mapstructure:"fallback" json:"fallback"`
	Audit     AuditConfig     `mapstructure:"audit" json:"audit"`
	Cache     CacheConfig     `mapstructure:"cache" json:"cache"`
}

// CryptoConfig tunes tenant key derivation.
type CryptoConfig struct {
	Iterations int `mapstructure:"iterations" json:"iterations"`
}

// ValidatorConfig governs health-check probes and batch fan-out.
type ValidatorConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" json:"probe_timeout"`
	MaxInFlight  int           `mapstructure:"max_in_flight" json:"max_in_flight"`
	// Latency thresholds for health score deductions.
	SlowAt     time.Duration `mapstructure:"slow_at" json:"slow_at"`
	DegradedAt time.Duration `mapstructure:"degraded_at" json:"degraded_at"`
	CriticalAt time.Duration `mapstructure:"critical_at" json:"critical_at"`
}

// FallbackConfig supplies circuit-breaker defaults for chains that do not
// override them.
type FallbackConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" json:"failure_threshold"`
	RecoveryWindow   time.Duration `mapstructure:"recovery_window" json:"recovery_window"`
	SuccessThreshold int           `mapstructure:"success_threshold" json:"success_threshold"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" json:"retry_delay"`
	MaxRetries       int           `mapstructure:"max_retries" json:"max_retries"`
}

// AuditConfig controls the audit trail retention window.
type AuditConfig struct {
	Retention time.Duration `mapstructure:"retention" json:"retention"`
}

// CacheConfig scopes the decrypted-credential look-aside.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl" json:"ttl"`
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Crypto: CryptoConfig{Iterations: 100_000},
		Validator: ValidatorConfig{
			ProbeTimeout: 10 * time.Second,
			MaxInFlight:  5,
			SlowAt:       time.Second,
			DegradedAt:   3 * time.Second,
			CriticalAt:   5 * time.Second,
		},
		Fallback: FallbackConfig{
			FailureThreshold: 5,
			RecoveryWindow:   60 * time.Second,
			SuccessThreshold: 3,
			RetryDelay:       100 * time.Millisecond,
			MaxRetries:       3,
		},
		Audit: AuditConfig{Retention: 90 * 24 * time.Hour},
		Cache: CacheConfig{TTL: 5 * time.Minute},
	}
}

// Validate ensures required fields are present and sane.
func (c *Config) Validate() error {
	if c.Crypto.Iterations < 100_000 {
		return errors.New("crypto.iterations must be >= 100000")
	}
	if c.Validator.ProbeTimeout <= 0 {
		return fmt.Errorf("validator.probe_timeout must be > 0")
	}
	if c.Validator.MaxInFlight <= 0 {
		return fmt.Errorf("validator.max_in_flight must be > 0")
	}
	if c.Fallback.FailureThreshold <= 0 {
		return fmt.Errorf("fallback.failure_threshold must be > 0")
	}
	if c.Fallback.SuccessThreshold <= 0 {
		return fmt.Errorf("fallback.success_threshold must be > 0")
	}
	if c.Fallback.RecoveryWindow <= 0 {
		return fmt.Errorf("fallback.recovery_window must be > 0")
	}
	if c.Audit.Retention < 0 {
		return fmt.Errorf("audit.retention must be >= 0")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be >= 0")
	}
	return nil
}

// Load decodes arbitrary input (struct, map) using cfgx helpers, falling
// back to a lightweight JSON decode when cfgx yields zero values.
func Load(input any, opts ...LoadOption) (Config, error) {
	settings := loadOptions{}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := cfgx.Build(input, settings.buildOpts...)
	if err != nil {
		return Config{}, err
	}

	if isZero(cfg) {
		if err := decodeFallback(input, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadOption lets callers amend cfgx build options.
type LoadOption func(*loadOptions)

type loadOptions struct {
	buildOpts []cfgx.Option[Config]
}

// WithBuildOptions forwards cfgx options (duration hooks, preprocessors, etc.).
func WithBuildOptions(opts ...cfgx.Option[Config]) LoadOption {
	return func(lo *loadOptions) {
		lo.buildOpts = append(lo.buildOpts, opts...)
	}
}

func (c Config) withDefaults() Config {
	defaults := Defaults()

	if c.Crypto.Iterations == 0 {
		c.Crypto.Iterations = defaults.Crypto.Iterations
	}
	if c.Validator.ProbeTimeout == 0 {
		c.Validator.ProbeTimeout = defaults.Validator.ProbeTimeout
	}
	if c.Validator.MaxInFlight == 0 {
		c.Validator.MaxInFlight = defaults.Validator.MaxInFlight
	}
	if c.Validator.SlowAt == 0 {
		c.Validator.SlowAt = defaults.Validator.SlowAt
	}
	if c.Validator.DegradedAt == 0 {
		c.Validator.DegradedAt = defaults.Validator.DegradedAt
	}
	if c.Validator.CriticalAt == 0 {
		c.Validator.CriticalAt = defaults.Validator.CriticalAt
	}
	if c.Fallback.FailureThreshold == 0 {
		c.Fallback.FailureThreshold = defaults.Fallback.FailureThreshold
	}
	if c.Fallback.RecoveryWindow == 0 {
		c.Fallback.RecoveryWindow = defaults.Fallback.RecoveryWindow
	}
	if c.Fallback.SuccessThreshold == 0 {
		c.Fallback.SuccessThreshold = defaults.Fallback.SuccessThreshold
	}
	if c.Fallback.RetryDelay == 0 {
		c.Fallback.RetryDelay = defaults.Fallback.RetryDelay
	}
	if c.Fallback.MaxRetries == 0 {
		c.Fallback.MaxRetries = defaults.Fallback.MaxRetries
	}
	if c.Audit.Retention == 0 {
		c.Audit.Retention = defaults.Audit.Retention
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = defaults.Cache.TTL
	}
	return c
}

func isZero(cfg Config) bool {
	return reflect.DeepEqual(cfg, Config{})
}

func decodeFallback(input any, cfg *Config) error {
	switch v := input.(type) {
	case nil:
		return nil
	case Config:
		*cfg = v
		return nil
	case *Config:
		if v != nil {
			*cfg = *v
		}
		return nil
	case map[string]any:
		return decodeMap(v, cfg)
	default:
		return fmt.Errorf("unsupported config input type: %T", input)
	}
}

func decodeMap(input map[string]any, cfg *Config) error {
	if input == nil {
		return nil
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, cfg)
}
