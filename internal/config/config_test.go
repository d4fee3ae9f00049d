// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keyengine.
//
// go-keyengine is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeremyhahn/go-keyengine/pkg/crypto/rand"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyengine.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}
	return path
}

// TestLoad_Success tests successful loading of a valid config file
func TestLoad_Success(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "debug"
  format: "json"

memory:
  limit: 1048576
  lock_keys: true

keyslots:
  backend: "software"
  slots: 32

engine:
  max_contexts: 64
  latency: 10us
  poll_interval: 50us
  poll_limit: 500

rng:
  mode: "drbg"
  fallback: "software"
  drbg:
    personalization: "node-1"

metrics:
  enabled: false
  resource_interval: 30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
	if cfg.Memory.Limit != 1048576 || !cfg.Memory.LockKeys {
		t.Errorf("Memory = %+v, want limit 1048576 with locked keys", cfg.Memory)
	}
	if cfg.Keyslots.Slots != 32 {
		t.Errorf("Keyslots.Slots = %v, want 32", cfg.Keyslots.Slots)
	}
	if cfg.Engine.MaxContexts != 64 {
		t.Errorf("Engine.MaxContexts = %v, want 64", cfg.Engine.MaxContexts)
	}
	if cfg.Engine.PollInterval != 50*time.Microsecond {
		t.Errorf("Engine.PollInterval = %v, want 50us", cfg.Engine.PollInterval)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
	if cfg.Metrics.ResourceInterval != 30*time.Second {
		t.Errorf("Metrics.ResourceInterval = %v, want 30s", cfg.Metrics.ResourceInterval)
	}

	rc, err := cfg.RandConfig()
	if err != nil {
		t.Fatalf("RandConfig() error = %v", err)
	}
	if rc.Mode != rand.ModeDRBG || rc.Fallback != rand.ModeSoftware {
		t.Errorf("RandConfig() modes = %v/%v, want drbg/software", rc.Mode, rc.Fallback)
	}
	if rc.DRBG == nil || rc.DRBG.SeedMode != rand.ModeSoftware || string(rc.DRBG.Personalization) != "node-1" {
		t.Errorf("RandConfig().DRBG = %+v", rc.DRBG)
	}
}

// TestLoad_Defaults fills omitted sections from Default
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "engine:\n  max_contexts: 4\n"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.Keyslots.Backend != "software" || cfg.Keyslots.Slots != 16 {
		t.Errorf("Keyslots = %+v, want software with 16 slots", cfg.Keyslots)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %v, want info", cfg.Logging.Level)
	}
}

// TestLoad_FileNotFound tests loading a non-existent config file
func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/keyengine.yaml")
	if err == nil {
		t.Fatal("Load() error = nil, want error")
	}
	if cfg != nil {
		t.Errorf("Load() = %v, want nil", cfg)
	}
}

// TestLoad_InvalidYAML tests loading an invalid YAML file
func TestLoad_InvalidYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  level: [unclosed\n"))
	if err == nil {
		t.Fatal("Load() error = nil, want error")
	}
	if cfg != nil {
		t.Errorf("Load() = %v, want nil", cfg)
	}
}

// TestApplyEnvOverrides tests environment variable overrides
func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("KEYENGINE_LOG_LEVEL", "warn")
	t.Setenv("KEYENGINE_LOG_FORMAT", "json")
	t.Setenv("KEYENGINE_MAX_CONTEXTS", "12")
	t.Setenv("KEYENGINE_KEYSLOT_BACKEND", "pkcs11")
	t.Setenv("PKCS11_LIBRARY", "/usr/lib/softhsm/libsofthsm2.so")
	t.Setenv("KEYENGINE_PKCS11_PIN", "1234")
	t.Setenv("KEYENGINE_RNG_MODE", "tpm2")
	t.Setenv("TPM_DEVICE_PATH", "/dev/tpmrm0")

	cfg := Default()
	cfg.Keyslots.PKCS11 = &PKCS11Config{}
	cfg.RNG.TPM2 = &TPM2Config{}
	applyEnvOverrides(cfg)

	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want warn/json", cfg.Logging)
	}
	if cfg.Engine.MaxContexts != 12 {
		t.Errorf("Engine.MaxContexts = %v, want 12", cfg.Engine.MaxContexts)
	}
	if cfg.Keyslots.Backend != "pkcs11" || cfg.Keyslots.PKCS11.Library != "/usr/lib/softhsm/libsofthsm2.so" || cfg.Keyslots.PKCS11.Pin != "1234" {
		t.Errorf("Keyslots = %+v", cfg.Keyslots)
	}
	if cfg.RNG.Mode != "tpm2" || cfg.RNG.TPM2.DevicePath != "/dev/tpmrm0" {
		t.Errorf("RNG = %+v", cfg.RNG)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

// TestApplyEnvOverrides_InvalidMaxContexts keeps the configured value
func TestApplyEnvOverrides_InvalidMaxContexts(t *testing.T) {
	for _, v := range []string{"many", "-1"} {
		t.Setenv("KEYENGINE_MAX_CONTEXTS", v)
		cfg := Default()
		cfg.Engine.MaxContexts = 8
		applyEnvOverrides(cfg)
		if cfg.Engine.MaxContexts != 8 {
			t.Errorf("KEYENGINE_MAX_CONTEXTS=%q: MaxContexts = %v, want 8", v, cfg.Engine.MaxContexts)
		}
	}
}

// TestValidate tests configuration validation
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"memory limit", func(c *Config) { c.Memory.Limit = -1 }, true},
		{"keyslot backend", func(c *Config) { c.Keyslots.Backend = "vault" }, true},
		{"pkcs11 without library", func(c *Config) { c.Keyslots.Backend = "pkcs11" }, true},
		{"pkcs11 with library", func(c *Config) {
			c.Keyslots.Backend = "pkcs11"
			c.Keyslots.PKCS11 = &PKCS11Config{Library: "/lib/p11.so"}
		}, false},
		{"zero slots", func(c *Config) { c.Keyslots.Slots = 0 }, true},
		{"negative contexts", func(c *Config) { c.Engine.MaxContexts = -2 }, true},
		{"negative latency", func(c *Config) { c.Engine.Latency = -time.Second }, true},
		{"rng mode", func(c *Config) { c.RNG.Mode = "dice" }, true},
		{"rng tpm2 without device", func(c *Config) { c.RNG.Mode = "tpm2" }, true},
		{"rng tpm2 simulator", func(c *Config) {
			c.RNG.Mode = "tpm2"
			c.RNG.TPM2 = &TPM2Config{UseSimulator: true}
		}, false},
		{"rng pkcs11 fallback without library", func(c *Config) { c.RNG.Fallback = "pkcs11" }, true},
		{"resource interval", func(c *Config) { c.Metrics.ResourceInterval = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestRandConfig_InvalidMode rejects unknown modes
func TestRandConfig_InvalidMode(t *testing.T) {
	cfg := Default()
	cfg.RNG.Mode = "dice"
	if _, err := cfg.RandConfig(); err == nil {
		t.Fatal("RandConfig() error = nil, want error")
	}
}

// TestLoadOrDefault applies environment overrides without a file
func TestLoadOrDefault(t *testing.T) {
	t.Setenv("KEYENGINE_LOG_LEVEL", "debug")

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
	if cfg.Keyslots.Backend != "software" {
		t.Errorf("Keyslots.Backend = %v, want software", cfg.Keyslots.Backend)
	}

	t.Setenv("KEYENGINE_LOG_LEVEL", "loud")
	if _, err := LoadOrDefault(""); err == nil {
		t.Error("LoadOrDefault() error = nil, want invalid level")
	}
}
