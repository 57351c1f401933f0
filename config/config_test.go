package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Name != DefaultName {
		t.Errorf("expected name %q, got %q", DefaultName, cfg.Name)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected 'development', got %q", cfg.Environment)
	}
	if cfg.Logging.ServiceName != DefaultName || cfg.Logging.Level != "info" {
		t.Errorf("unexpected logging defaults %+v", cfg.Logging)
	}
	if cfg.Runner.Parallelism != 1 {
		t.Errorf("expected parallelism 1, got %d", cfg.Runner.Parallelism)
	}
	if cfg.Telemetry.SampleRate != 1 || cfg.Telemetry.Endpoint != "" {
		t.Errorf("unexpected telemetry defaults %+v", cfg.Telemetry)
	}

	enabled := Config{Telemetry: TelemetryConfig{Enabled: true}}
	enabled.ApplyDefaults()
	if enabled.Telemetry.Endpoint != "localhost:4318" {
		t.Errorf("expected default endpoint, got %q", enabled.Telemetry.Endpoint)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"ci environment", func(c *Config) { c.Environment = "ci" }, ""},
		{"unknown environment", func(c *Config) { c.Environment = "staging" }, "environment"},
		{"negative parallelism", func(c *Config) { c.Runner.Parallelism = -1 }, "parallelism"},
		{"negative teardown timeout", func(c *Config) { c.Runner.TeardownTimeout = -time.Second }, "teardown_timeout"},
		{"telemetry without endpoint", func(c *Config) { c.Telemetry.Enabled = true }, "endpoint"},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "sample_rate"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestLoadWithYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "fixturekit.yml")

	yamlContent := `
name: suite
environment: ci
runner:
  parallelism: 4
  teardown_timeout: 2s
  fail_fast: true
telemetry:
  enabled: true
  endpoint: otel:4318
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(WithConfigFile(configPath), WithEnvFile(filepath.Join(dir, "missing.env")))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "suite" || cfg.Environment != "ci" {
		t.Errorf("unexpected base fields %q %q", cfg.Name, cfg.Environment)
	}
	if cfg.Runner.Parallelism != 4 || cfg.Runner.TeardownTimeout != 2*time.Second || !cfg.Runner.FailFast {
		t.Errorf("unexpected runner config %+v", cfg.Runner)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "otel:4318" {
		t.Errorf("unexpected telemetry config %+v", cfg.Telemetry)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "fixturekit.yml")
	if err := os.WriteFile(configPath, []byte("runner:\n  parallelism: 2\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("FIXTUREKIT_LOGGING_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatalf("failed to write env: %v", err)
	}
	t.Setenv("FIXTUREKIT_RUNNER_PARALLELISM", "8")
	t.Setenv("FIXTUREKIT_RUNNER_TEARDOWN_TIMEOUT", "750ms")
	t.Cleanup(func() { os.Unsetenv("FIXTUREKIT_LOGGING_LEVEL") })

	cfg, err := Load(WithConfigFile(configPath), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Runner.Parallelism != 8 {
		t.Errorf("expected env to override parallelism, got %d", cfg.Runner.Parallelism)
	}
	if cfg.Runner.TeardownTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %s", cfg.Runner.TeardownTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level from .env, got %q", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(WithConfigFile("/nonexistent/path.yml"), WithEnvFile("/nonexistent/.env"))
	if err != nil {
		t.Fatalf("expected Load to succeed with missing file, got %v", err)
	}
	if cfg.Name != DefaultName {
		t.Errorf("expected default name, got %q", cfg.Name)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "fixturekit.yml")
	if err := os.WriteFile(configPath, []byte("runner: [unterminated"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(WithConfigFile(configPath)); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./config/fixturekit.yml": true,
		"./.env":                  true,
	}}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles("fixturekit", LoaderConfig{})
	if files.ConfigFile != "./config/fixturekit.yml" {
		t.Errorf("expected ./config/fixturekit.yml, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./.env" {
		t.Errorf("expected ./.env, got %q", files.EnvFile)
	}

	explicit := resolver.ResolveFiles("fixturekit", LoaderConfig{ConfigFile: "custom.yml"})
	if explicit.ConfigFile != "custom.yml" {
		t.Errorf("expected explicit path to win, got %q", explicit.ConfigFile)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool  { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestGenerateEnvKeyVariants(t *testing.T) {
	got := generateEnvKeyVariants("RUNNER_TEARDOWN_TIMEOUT")
	want := map[string]bool{
		"runner_teardown_timeout": true,
		"runner.teardown.timeout": true,
		"runner.teardown_timeout": true,
		"runner_teardown.timeout": true,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d variants, got %v", len(want), got)
	}
	for _, v := range got {
		if !want[v] {
			t.Errorf("unexpected variant %q", v)
		}
	}
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	fs := &mockFS{}
	WithFileSystem(fs)(&lc)
	WithConfigFile("/path/to/fixturekit.yml")(&lc)
	WithEnvFile("/path/to/.env")(&lc)
	if lc.FileSystem == nil || lc.ConfigFile != "/path/to/fixturekit.yml" || lc.EnvFile != "/path/to/.env" {
		t.Errorf("unexpected loader config %+v", lc)
	}
}
