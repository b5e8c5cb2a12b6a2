package config

import (
	"time"

	"github.com/kbukum/streamkit/buffer"
	"github.com/kbukum/streamkit/transform"
	"github.com/kbukum/streamkit/validation"
)

// BufferConfig configures a cache or queue.
type BufferConfig struct {
	Capacity   int           `yaml:"capacity" mapstructure:"capacity"`
	DropPolicy string        `yaml:"drop_policy" mapstructure:"drop_policy"`
	TTL        time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ApplyDefaults fills unset buffer fields.
func (c *BufferConfig) ApplyDefaults() {
	if c.Capacity == 0 {
		c.Capacity = 256
	}
	if c.DropPolicy == "" {
		c.DropPolicy = buffer.DropOldest.String()
	}
}

// Validate reports invalid buffer settings as INVALID_CONFIG.
func (c *BufferConfig) Validate() error {
	v := validation.New()
	v.Min("buffer.capacity", c.Capacity, 1)
	v.OneOf("buffer.drop_policy", c.DropPolicy, []string{"oldest", "newest"})
	v.NonNegative("buffer.ttl", c.TTL)
	if err := v.ValidateConfig(); err != nil {
		return err
	}
	return nil
}

// Options converts the section into buffer options. onDrop may be nil.
func (c *BufferConfig) Options(onDrop func(buffer.DropReason, int)) (buffer.Options, error) {
	policy, err := buffer.ParseDropPolicy(c.DropPolicy)
	if err != nil {
		return buffer.Options{}, err
	}
	opts := buffer.Options{
		Capacity:   c.Capacity,
		DropPolicy: policy,
		TTL:        c.TTL,
		OnDrop:     onDrop,
	}
	return opts, opts.Validate()
}

// MapperConfig configures transform.Map.
type MapperConfig struct {
	Strategy    string `yaml:"strategy" mapstructure:"strategy"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	ErrorPolicy string `yaml:"error_policy" mapstructure:"error_policy"`
}

// ApplyDefaults fills unset mapper fields.
func (c *MapperConfig) ApplyDefaults() {
	if c.Strategy == "" {
		c.Strategy = transform.Sequential.String()
	}
	if c.ErrorPolicy == "" {
		c.ErrorPolicy = transform.Continue.String()
	}
}

// Validate reports invalid mapper settings as INVALID_CONFIG.
func (c *MapperConfig) Validate() error {
	v := validation.New()
	if _, err := transform.ParseStrategy(c.Strategy); err != nil {
		v.AddError("mapper.strategy", "must be sequential, concurrent or ordered")
	}
	if _, err := transform.ParseErrorPolicy(c.ErrorPolicy); err != nil {
		v.AddError("mapper.error_policy", "must be continue or abort")
	}
	v.Custom(c.Concurrency >= 0, "mapper.concurrency", "must not be negative")
	if err := v.ValidateConfig(); err != nil {
		return err
	}
	return nil
}

// Options converts the section into transform options.
func (c *MapperConfig) Options() ([]transform.Option, error) {
	strategy, err := transform.ParseStrategy(c.Strategy)
	if err != nil {
		return nil, err
	}
	policy, err := transform.ParseErrorPolicy(c.ErrorPolicy)
	if err != nil {
		return nil, err
	}
	return []transform.Option{
		transform.WithStrategy(strategy),
		transform.WithConcurrency(c.Concurrency),
		transform.WithErrorPolicy(policy),
	}, nil
}
