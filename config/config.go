package config

import (
	"fmt"
	"time"

	"github.com/kbukum/fixturekit/logger"
	"github.com/kbukum/fixturekit/util"
	"github.com/kbukum/fixturekit/validation"
)

// DefaultName is the name used for file lookup and the logger service tag.
const DefaultName = "fixturekit"

// Config is the top-level fixturekit configuration.
type Config struct {
	Name        string          `yaml:"name" mapstructure:"name" json:"name" validate:"required"`
	Environment string          `yaml:"environment" mapstructure:"environment" json:"environment" validate:"oneof=development ci production"`
	Logging     logger.Config   `yaml:"logging" mapstructure:"logging" json:"logging"`
	Runner      RunnerConfig    `yaml:"runner" mapstructure:"runner" json:"runner"`
	Telemetry   TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry" json:"telemetry"`
}

// RunnerConfig controls how test sessions execute.
type RunnerConfig struct {
	// Parallelism bounds concurrently running tests of one group. 1 runs
	// tests sequentially.
	Parallelism int `yaml:"parallelism" mapstructure:"parallelism" json:"parallelism" validate:"gte=1,lte=256"`
	// TeardownTimeout bounds each scope teardown. Zero waits forever.
	TeardownTimeout time.Duration `yaml:"teardown_timeout" mapstructure:"teardown_timeout" json:"teardown_timeout" validate:"gte=0"`
	// FailFast skips remaining tests after the first failure.
	FailFast bool `yaml:"fail_fast" mapstructure:"fail_fast" json:"fail_fast"`
}

// TelemetryConfig configures OpenTelemetry export of fixture and test
// spans and metrics.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint" json:"endpoint" validate:"required_if=Enabled true"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure" json:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" json:"sample_rate" validate:"gte=0,lte=1"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	c.Name = util.Coalesce(c.Name, DefaultName)
	c.Environment = util.Coalesce(c.Environment, "development")
	// Propagate the name into logging so Init() uses the right tag.
	c.Logging.ServiceName = util.Coalesce(c.Logging.ServiceName, c.Name)
	c.Logging.ApplyDefaults()
	c.Runner.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}

// ApplyDefaults fills unset runner fields.
func (c *RunnerConfig) ApplyDefaults() {
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
}

// ApplyDefaults fills unset telemetry fields.
func (c *TelemetryConfig) ApplyDefaults() {
	if c.Endpoint == "" && c.Enabled {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1
	}
}

// Load reads configuration from the default locations, applies defaults
// and validates the result.
func Load(opts ...LoaderOption) (*Config, error) {
	var cfg Config
	if err := LoadConfig(DefaultName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
