package main

import (
	"time"

	"github.com/kbukum/streamkit/config"
	"github.com/kbukum/streamkit/expose"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/validation"
)

// Config is the streamd configuration, loaded from config.yml and
// STREAMD_* environment variables.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Buffer        config.BufferConfig  `yaml:"buffer" mapstructure:"buffer"`
	Mapper        config.MapperConfig  `yaml:"mapper" mapstructure:"mapper"`
	Expose        expose.Config        `yaml:"expose" mapstructure:"expose"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`

	// ClockInterval is the tick period of the clock route.
	ClockInterval time.Duration `yaml:"clock_interval" mapstructure:"clock_interval"`
}

// ApplyDefaults fills unset fields of every section.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Buffer.ApplyDefaults()
	c.Mapper.ApplyDefaults()
	c.Expose.ApplyDefaults()
	c.Observability.ApplyDefaults()
	if c.ClockInterval == 0 {
		c.ClockInterval = time.Second
	}
}

// Validate validates every section, stopping at the first invalid one.
func (c *Config) Validate() error {
	for _, section := range []interface{ Validate() error }{
		&c.ServiceConfig, &c.Buffer, &c.Mapper, &c.Expose, &c.Observability,
	} {
		if err := section.Validate(); err != nil {
			return err
		}
	}
	v := validation.New()
	v.Custom(c.ClockInterval > 0, "clock_interval", "must be positive")
	return v.ValidateConfig()
}
