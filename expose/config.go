package expose

import (
	"fmt"
	"time"

	"github.com/kbukum/streamkit/validation"
)

// Config holds the HTTP settings of the adapter.
type Config struct {
	Host string `yaml:"host" mapstructure:"host"`
	// Port 0 binds an ephemeral port; see Adapter.Addr.
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	// ReplyTimeout bounds how long a request waits for its reply. Zero
	// waits until the client goes away.
	ReplyTimeout time.Duration `yaml:"reply_timeout" mapstructure:"reply_timeout"`
	// KeepAlive is the SSE comment and WebSocket ping interval.
	KeepAlive time.Duration `yaml:"keep_alive" mapstructure:"keep_alive"`
	// ClientBuffer is the number of events held for a slow subscriber
	// before further events are dropped for it.
	ClientBuffer int   `yaml:"client_buffer" mapstructure:"client_buffer"`
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.ReplyTimeout == 0 {
		c.ReplyTimeout = 30 * time.Second
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.ClientBuffer == 0 {
		c.ClientBuffer = 256
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

// Validate reports invalid settings as INVALID_CONFIG.
func (c *Config) Validate() error {
	v := validation.New()
	v.Range("expose.port", c.Port, 0, 65535)
	v.NonNegative("expose.read_timeout", c.ReadTimeout)
	v.NonNegative("expose.write_timeout", c.WriteTimeout)
	v.NonNegative("expose.idle_timeout", c.IdleTimeout)
	v.NonNegative("expose.shutdown_timeout", c.ShutdownTimeout)
	v.NonNegative("expose.reply_timeout", c.ReplyTimeout)
	v.Custom(c.KeepAlive > 0, "expose.keep_alive", "must be positive")
	v.Min("expose.client_buffer", c.ClientBuffer, 1)
	v.Custom(c.MaxBodyBytes > 0, "expose.max_body_bytes", "must be positive")
	if err := v.ValidateConfig(); err != nil {
		return err
	}
	return nil
}

// Addr returns the configured listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
