// Package validation provides input and configuration validation.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection. Failures are returned as
// errors.AppError carrying INVALID_INPUT or INVALID_CONFIG and a "fields"
// detail listing every failed field.
//
// # Struct Tag Validation
//
//	type Options struct {
//	    Capacity int `mapstructure:"capacity" validate:"gte=1"`
//	}
//	err := validation.ValidateConfig(opts)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Min("capacity", capacity, 1)
//	if err := v.ValidateConfig(); err != nil { ... }
package validation
