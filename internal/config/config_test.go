package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should be valid, got: %v", err)
	}
}

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
server:
  port: 9090
pool:
  max_size: 32
capacity:
  max_episodes: 500
  policy: lru
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected server.port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Pool.MaxSize != 32 {
		t.Errorf("expected pool.max_size 32, got %d", cfg.Pool.MaxSize)
	}
	if cfg.Capacity.Policy != EvictionLRU {
		t.Errorf("expected capacity.policy lru, got %s", cfg.Capacity.Policy)
	}
	// Untouched sections should retain their defaults.
	if cfg.Sandbox.MaxExecutionTime != DefaultConfig().Sandbox.MaxExecutionTime {
		t.Errorf("expected sandbox defaults to survive a partial override")
	}
}

func TestLoadConfigReadsCredentialsFromEnvironmentOnly(t *testing.T) {
	path := writeTestConfig(t, `
durable:
  url: "should-be-ignored"
`)

	t.Setenv("MEMORY_DB_URL", "postgres://example/db")
	t.Setenv("MEMORY_DB_AUTH_TOKEN", "secret-token")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Durable.URL != "postgres://example/db" {
		t.Errorf("expected durable.URL from environment, got %q", cfg.Durable.URL)
	}
	if cfg.Durable.AuthToken != "secret-token" {
		t.Errorf("expected durable.AuthToken from environment, got %q", cfg.Durable.AuthToken)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidateRejectsBadPoolSizing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pool.MinSize = 20
	cfg.Pool.MaxSize = 10
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when min_size > max_size")
	}
}

func TestValidateRejectsUnknownEvictionPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity.Policy = "unknown_policy"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for an unknown eviction policy")
	}
}

func TestValidateRejectsNATSEnabledWithoutURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.NATSEnabled = true
	cfg.Audit.NATSURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when NATS is enabled without a URL")
	}
}

func TestValidateRejectsZeroRewardWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reward = RewardWeightsConfig{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when all reward weights are zero")
	}
}
