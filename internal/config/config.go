// Package config loads process configuration from HEALTHMON_* environment
// variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mukhtiarDev/personal-health-monitor/internal/engine"
)

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "HEALTHMON"

// Config is the resolved configuration shared by every command.
type Config struct {
	PostgresDSN   string
	ClickHouseDSN string // empty disables the audit mirror and analytics

	HeartRateAnomalyThreshold  float64
	HeartRateCriticalThreshold float64

	WorkerInterval    time.Duration
	SimulatorInterval time.Duration
	EscalationLease   time.Duration

	HTTPPort string
	GRPCPort string
	LogLevel string

	// OperatorTokenHash is a bcrypt hash of a shared operator bearer token.
	// Empty means only tokens from the operators table are accepted.
	OperatorTokenHash string
	AuthCacheTTL      time.Duration
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	t := engine.DefaultThresholds()
	return &Config{
		HeartRateAnomalyThreshold:  t.Warn,
		HeartRateCriticalThreshold: t.Critical,
		WorkerInterval:             5 * time.Second,
		SimulatorInterval:          3 * time.Second,
		EscalationLease:            time.Minute,
		HTTPPort:                   "8080",
		GRPCPort:                   "9090",
		LogLevel:                   "info",
		AuthCacheTTL:               30 * time.Second,
	}
}

// Load resolves the configuration. Precedence: environment > file > defaults.
// path may be empty. The result is not validated.
func Load(path string) (*Config, error) {
	def := Default()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("postgres_dsn", "")
	v.SetDefault("clickhouse_dsn", "")
	v.SetDefault("heart_rate_anomaly_threshold", def.HeartRateAnomalyThreshold)
	v.SetDefault("heart_rate_critical_threshold", def.HeartRateCriticalThreshold)
	v.SetDefault("worker_interval", def.WorkerInterval)
	v.SetDefault("simulator_interval", def.SimulatorInterval)
	v.SetDefault("escalation_lease", def.EscalationLease)
	v.SetDefault("http_port", def.HTTPPort)
	v.SetDefault("grpc_port", def.GRPCPort)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("operator_token_hash", "")
	v.SetDefault("auth_cache_ttl", def.AuthCacheTTL)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	return &Config{
		PostgresDSN:                v.GetString("postgres_dsn"),
		ClickHouseDSN:              v.GetString("clickhouse_dsn"),
		HeartRateAnomalyThreshold:  v.GetFloat64("heart_rate_anomaly_threshold"),
		HeartRateCriticalThreshold: v.GetFloat64("heart_rate_critical_threshold"),
		WorkerInterval:             v.GetDuration("worker_interval"),
		SimulatorInterval:          v.GetDuration("simulator_interval"),
		EscalationLease:            v.GetDuration("escalation_lease"),
		HTTPPort:                   v.GetString("http_port"),
		GRPCPort:                   v.GetString("grpc_port"),
		LogLevel:                   strings.ToLower(v.GetString("log_level")),
		OperatorTokenHash:          v.GetString("operator_token_hash"),
		AuthCacheTTL:               v.GetDuration("auth_cache_ttl"),
	}, nil
}

// Thresholds returns the classification thresholds.
func (c *Config) Thresholds() engine.Thresholds {
	return engine.Thresholds{
		Warn:     c.HeartRateAnomalyThreshold,
		Critical: c.HeartRateCriticalThreshold,
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateRemote is Validate for commands that reach Postgres only through
// the dashboard API, so the DSN may be empty.
func (c *Config) ValidateRemote() error {
	return c.validate(false)
}

func (c *Config) validate(needDSN bool) error {
	var errs []error
	if needDSN && c.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("%s_POSTGRES_DSN is required", EnvPrefix))
	}
	if err := c.Thresholds().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.WorkerInterval <= 0 {
		errs = append(errs, fmt.Errorf("worker_interval must be positive, got %s", c.WorkerInterval))
	}
	if c.SimulatorInterval <= 0 {
		errs = append(errs, fmt.Errorf("simulator_interval must be positive, got %s", c.SimulatorInterval))
	}
	if c.EscalationLease <= 0 {
		errs = append(errs, fmt.Errorf("escalation_lease must be positive, got %s", c.EscalationLease))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel))
	}
	return errors.Join(errs...)
}
