// Package config loads service configuration from YAML files, .env files and
// environment variables using viper.
//
// ServiceConfig carries the fields every binary needs and is meant to be
// embedded. BufferConfig and MapperConfig are reusable sections that convert
// into buffer.Options and transform options:
//
//	var cfg Config
//	if err := config.LoadConfig("streamd", &cfg); err != nil { ... }
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil { ... }
//	opts, err := cfg.Buffer.Options(nil)
package config
