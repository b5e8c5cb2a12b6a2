package observability

import (
	"context"
	"errors"
	"time"

	"github.com/kbukum/streamkit/validation"
)

// Config is the observability section of a service configuration.
type Config struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint       string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate     float64       `yaml:"sample_rate" mapstructure:"sample_rate"`
	MetricInterval time.Duration `yaml:"metric_interval" mapstructure:"metric_interval"`
}

// ApplyDefaults fills unset fields with development defaults.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = 15 * time.Second
	}
}

// Validate reports invalid settings as INVALID_CONFIG.
func (c *Config) Validate() error {
	v := validation.New()
	if c.Enabled {
		v.Required("observability.endpoint", c.Endpoint)
	}
	v.Custom(c.SampleRate >= 0 && c.SampleRate <= 1, "observability.sample_rate", "must be between 0 and 1")
	v.NonNegative("observability.metric_interval", c.MetricInterval)
	if err := v.ValidateConfig(); err != nil {
		return err
	}
	return nil
}

// Resource identifies the process in exported telemetry.
type Resource struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Setup installs the global tracer and meter providers described by cfg and
// returns a function that flushes and shuts both down. When cfg is disabled
// nothing is installed and the returned function is a no-op.
func Setup(ctx context.Context, cfg Config, res Resource) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	tp, err := InitTracer(ctx, &TracerConfig{
		ServiceName:    res.ServiceName,
		ServiceVersion: res.ServiceVersion,
		Environment:    res.Environment,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		SampleRate:     cfg.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	mp, err := InitMeter(ctx, &MeterConfig{
		ServiceName:    res.ServiceName,
		ServiceVersion: res.ServiceVersion,
		Environment:    res.Environment,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		Interval:       cfg.MetricInterval,
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
