package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kbukum/streamkit/buffer"
	apperrors "github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/version"
)

type testConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Buffer        BufferConfig `yaml:"buffer" mapstructure:"buffer"`
	Mapper        MapperConfig `yaml:"mapper" mapstructure:"mapper"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug log level, got %q", cfg.Logging.Level)
		}
		if cfg.Version != version.Short() {
			t.Errorf("expected build version, got %q", cfg.Version)
		}
	})

	t.Run("production keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected info log level, got %q", cfg.Logging.Level)
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"valid staging", ServiceConfig{Name: "svc", Environment: "staging"}, ""},
		{"missing name", ServiceConfig{Environment: "production"}, "name: is required"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "qa"}, "environment: must be one of"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
			if apperrors.CodeOf(err) != apperrors.ErrCodeInvalidConfig {
				t.Errorf("code = %s", apperrors.CodeOf(err))
			}
		})
	}
}

func TestBufferConfig(t *testing.T) {
	var cfg BufferConfig
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	cfg = BufferConfig{Capacity: 3, DropPolicy: "newest", TTL: time.Second}
	opts, err := cfg.Options(nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Capacity != 3 || opts.DropPolicy != buffer.DropNewest || opts.TTL != time.Second {
		t.Errorf("Options() = %+v", opts)
	}

	bad := BufferConfig{Capacity: 0, DropPolicy: "middle", TTL: -time.Second}
	err = bad.Validate()
	if apperrors.CodeOf(err) != apperrors.ErrCodeInvalidConfig {
		t.Fatalf("Validate() = %v", err)
	}
	for _, field := range []string{"buffer.capacity", "buffer.drop_policy", "buffer.ttl"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestMapperConfig(t *testing.T) {
	var cfg MapperConfig
	cfg.ApplyDefaults()
	if cfg.Strategy != "sequential" || cfg.ErrorPolicy != "continue" {
		t.Errorf("defaults = %+v", cfg)
	}
	opts, err := (&MapperConfig{Strategy: "ordered", Concurrency: 4, ErrorPolicy: "abort"}).Options()
	if err != nil || len(opts) != 3 {
		t.Fatalf("Options() = %d, %v", len(opts), err)
	}

	bad := MapperConfig{Strategy: "parallel", Concurrency: -1, ErrorPolicy: "retry"}
	if err := bad.Validate(); apperrors.CodeOf(err) != apperrors.ErrCodeInvalidConfig {
		t.Errorf("Validate() = %v", err)
	}
	if _, err := bad.Options(); err == nil {
		t.Error("expected Options error")
	}
}

func TestLoadConfigWithYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", `
name: test-service
environment: staging
buffer:
  capacity: 8
  drop_policy: newest
  ttl: 250ms
mapper:
  strategy: ordered
  concurrency: 2
`)

	var cfg testConfig
	if err := LoadConfig("test-service", &cfg, WithConfigFile(path), WithEnvFile(filepath.Join(dir, "missing.env"))); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := testConfig{
		ServiceConfig: ServiceConfig{Name: "test-service", Environment: "staging"},
		Buffer:        BufferConfig{Capacity: 8, DropPolicy: "newest", TTL: 250 * time.Millisecond},
		Mapper:        MapperConfig{Strategy: "ordered", Concurrency: 2},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", "name: svc\nbuffer:\n  capacity: 8\n")
	envPath := writeFile(t, dir, ".env", "STREAMD_TEST_MAPPER_STRATEGY=concurrent\n")

	t.Setenv("STREAMD_TEST_BUFFER_CAPACITY", "32")
	t.Setenv("LOGGING_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("STREAMD_TEST_MAPPER_STRATEGY") })

	var cfg testConfig
	if err := LoadConfig("streamd-test", &cfg, WithConfigFile(path), WithEnvFile(envPath)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Buffer.Capacity != 32 {
		t.Errorf("buffer.capacity = %d, want 32", cfg.Buffer.Capacity)
	}
	if cfg.Mapper.Strategy != "concurrent" {
		t.Errorf("mapper.strategy = %q, want concurrent from .env", cfg.Mapper.Strategy)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("logging.level = %q, want unprefixed override", cfg.Logging.Level)
	}
	if cfg.Name != "svc" {
		t.Errorf("name = %q", cfg.Name)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg testConfig
	err := LoadConfig("nonexistent-service", &cfg,
		WithConfigFile("/nonexistent/path.yml"), WithEnvFile("/nonexistent/.env"))
	if err != nil {
		t.Fatalf("expected LoadConfig to succeed with missing file, got %v", err)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool   { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"../cmd/streamd/config.yml": true,
		"./config.yml":              true,
		"./config/.env":             true,
	}}
	files := (&Resolver{FileSystem: fs}).ResolveFiles("streamd", LoaderConfig{})
	want := ResolvedFiles{ConfigFile: "../cmd/streamd/config.yml", EnvFile: "./config/.env"}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	explicit := (&Resolver{FileSystem: fs}).ResolveFiles("streamd", LoaderConfig{ConfigFile: "x.yml"})
	if explicit.ConfigFile != "x.yml" {
		t.Errorf("explicit config file ignored: %q", explicit.ConfigFile)
	}
}

func TestConfigKeys(t *testing.T) {
	got := configKeys(reflect.TypeFor[testConfig](), "")
	want := []string{
		"name", "environment", "version", "debug",
		"logging.level", "logging.format", "logging.output",
		"logging.no_color", "logging.timestamp", "logging.caller",
		"buffer.capacity", "buffer.drop_policy", "buffer.ttl",
		"mapper.strategy", "mapper.concurrency", "mapper.error_policy",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"SVC_BUFFER_TTL", "BUFFER_TTL"}, envNames("SVC", "buffer.ttl")); diff != "" {
		t.Errorf("envNames (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"SVC_NAME"}, envNames("SVC", "name")); diff != "" {
		t.Errorf("top-level envNames (-want +got):\n%s", diff)
	}
}
