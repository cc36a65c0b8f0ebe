// Package config handles loading and validating pool and backend
// configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Mengxianke/MySQL-ConnectionPool/errs"
	"gopkg.in/yaml.v3"
)

// Strategy selects how the backend selector picks among multiple backends.
type Strategy string

const (
	Random     Strategy = "random"
	RoundRobin Strategy = "round_robin"
	Weighted   Strategy = "weighted"
)

// BackendSpec is an immutable description of one database endpoint.
// Identity is (Host, Port).
type BackendSpec struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Port     int    `yaml:"port"`
	Weight   int    `yaml:"weight"`
}

// Validate checks the mandatory fields of a BackendSpec.
func (b BackendSpec) Validate() error {
	if b.Host == "" {
		return &errs.ConfigInvalid{Reason: "backend host is required"}
	}
	if b.User == "" {
		return &errs.ConfigInvalid{Reason: "backend user is required"}
	}
	if b.Database == "" {
		return &errs.ConfigInvalid{Reason: "backend database is required"}
	}
	if b.Port <= 0 {
		return &errs.ConfigInvalid{Reason: "backend port must be > 0"}
	}
	return nil
}

// Addr returns the host:port address of the backend.
func (b BackendSpec) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// applyDefaults fills in the default port and weight.
func (b *BackendSpec) applyDefaults() {
	if b.Port == 0 {
		b.Port = 3306
	}
	if b.Weight == 0 {
		b.Weight = 1
	}
}

// PoolConfig is the full configuration surface for a Pool.
type PoolConfig struct {
	MinConnections       int      `yaml:"min_connections"`
	MaxConnections       int      `yaml:"max_connections"`
	InitConnections      int      `yaml:"init_connections"`
	AcquireTimeoutMS     int      `yaml:"acquire_timeout_ms"`
	IdleTTLMS            int      `yaml:"idle_ttl_ms"`
	HealthPeriodMS       int      `yaml:"health_period_ms"`
	ReconnectIntervalMS  int      `yaml:"reconnect_interval_ms"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
	LogQueries           bool     `yaml:"log_queries"`
	EnableMetrics        bool     `yaml:"enable_metrics"`
	Strategy             Strategy `yaml:"strategy"`
}

// AcquireTimeout returns the configured acquire timeout as a Duration.
func (c PoolConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMS) * time.Millisecond
}

// IdleTTL returns the configured idle TTL as a Duration.
func (c PoolConfig) IdleTTL() time.Duration {
	return time.Duration(c.IdleTTLMS) * time.Millisecond
}

// HealthPeriod returns the configured health check period as a Duration.
func (c PoolConfig) HealthPeriod() time.Duration {
	return time.Duration(c.HealthPeriodMS) * time.Millisecond
}

// ReconnectInterval returns the configured base reconnect interval as a Duration.
func (c PoolConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalMS) * time.Millisecond
}

// Default returns a PoolConfig with the documented defaults applied.
func Default() PoolConfig {
	return PoolConfig{
		MinConnections:       5,
		MaxConnections:       20,
		InitConnections:      5,
		AcquireTimeoutMS:     5000,
		IdleTTLMS:            600000,
		HealthPeriodMS:       30000,
		ReconnectIntervalMS:  1000,
		MaxReconnectAttempts: 3,
		LogQueries:           false,
		EnableMetrics:        true,
		Strategy:             Weighted,
	}
}

// applyDefaults fills in zero fields with the package defaults, field by field.
func (c *PoolConfig) applyDefaults() {
	d := Default()
	if c.MinConnections == 0 {
		c.MinConnections = d.MinConnections
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.InitConnections == 0 {
		c.InitConnections = d.InitConnections
	}
	if c.AcquireTimeoutMS == 0 {
		c.AcquireTimeoutMS = d.AcquireTimeoutMS
	}
	if c.IdleTTLMS == 0 {
		c.IdleTTLMS = d.IdleTTLMS
	}
	if c.HealthPeriodMS == 0 {
		c.HealthPeriodMS = d.HealthPeriodMS
	}
	if c.ReconnectIntervalMS == 0 {
		c.ReconnectIntervalMS = d.ReconnectIntervalMS
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.Strategy == "" {
		c.Strategy = d.Strategy
	}
}

// Validate checks the mandatory invariants of a PoolConfig.
func (c PoolConfig) Validate() error {
	if c.MinConnections < 1 {
		return &errs.ConfigInvalid{Reason: "min_connections must be >= 1"}
	}
	if c.MaxConnections < c.MinConnections {
		return &errs.ConfigInvalid{Reason: "max_connections must be >= min_connections"}
	}
	if c.InitConnections > c.MaxConnections {
		return &errs.ConfigInvalid{Reason: "init_connections must be <= max_connections"}
	}
	if c.AcquireTimeoutMS <= 0 {
		return &errs.ConfigInvalid{Reason: "acquire_timeout_ms must be > 0"}
	}
	if c.IdleTTLMS <= 0 {
		return &errs.ConfigInvalid{Reason: "idle_ttl_ms must be > 0"}
	}
	if c.HealthPeriodMS <= 0 {
		return &errs.ConfigInvalid{Reason: "health_period_ms must be > 0"}
	}
	if c.ReconnectIntervalMS <= 0 {
		return &errs.ConfigInvalid{Reason: "reconnect_interval_ms must be > 0"}
	}
	return nil
}

// File is the root YAML document shape: a pool section plus a list of backends.
type File struct {
	Pool     PoolConfig    `yaml:"pool"`
	Backends []BackendSpec `yaml:"backends"`
}

// Load reads and validates a pool+backends YAML configuration file.
func Load(path string) (PoolConfig, []BackendSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PoolConfig{}, nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	f := File{Pool: Default()}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return PoolConfig{}, nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if len(f.Backends) == 0 {
		return PoolConfig{}, nil, &errs.ConfigInvalid{Reason: "at least one backend must be configured"}
	}

	for i := range f.Backends {
		f.Backends[i].applyDefaults()
		if err := f.Backends[i].Validate(); err != nil {
			return PoolConfig{}, nil, fmt.Errorf("backend[%d]: %w", i, err)
		}
	}

	f.Pool.applyDefaults()
	if err := f.Pool.Validate(); err != nil {
		return PoolConfig{}, nil, err
	}

	return f.Pool, f.Backends, nil
}
