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
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Memory   MemoryConfig   `yaml:"memory"`
	Keyslots KeyslotsConfig `yaml:"keyslots"`
	Engine   EngineConfig   `yaml:"engine"`
	RNG      RNGConfig      `yaml:"rng"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MemoryConfig controls the key and scratch buffer pool
type MemoryConfig struct {
	Limit    int  `yaml:"limit"`     // bytes outstanding, 0 = unlimited
	LockKeys bool `yaml:"lock_keys"` // mlock key buffers where supported
}

// KeyslotsConfig selects the keyslot bank
type KeyslotsConfig struct {
	Backend string        `yaml:"backend"` // software, pkcs11
	Slots   int           `yaml:"slots"`
	PKCS11  *PKCS11Config `yaml:"pkcs11,omitempty"`
}

// PKCS11Config contains PKCS#11 token settings
type PKCS11Config struct {
	Library     string `yaml:"library"`
	Token       string `yaml:"token"`
	SlotID      uint   `yaml:"slot_id"`
	Pin         string `yaml:"pin"`
	LabelPrefix string `yaml:"label_prefix"`
}

// EngineConfig tunes the dispatcher and the emulated hardware engines
type EngineConfig struct {
	MaxContexts  int           `yaml:"max_contexts"`
	Latency      time.Duration `yaml:"latency"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollLimit    int           `yaml:"poll_limit"`
}

// RNGConfig selects the random engine's entropy source
type RNGConfig struct {
	Mode     string           `yaml:"mode"`     // auto, software, drbg, tpm2, pkcs11
	Fallback string           `yaml:"fallback"` // optional second source
	DRBG     *DRBGConfig      `yaml:"drbg,omitempty"`
	TPM2     *TPM2Config      `yaml:"tpm2,omitempty"`
	PKCS11   *PKCS11RNGConfig `yaml:"pkcs11,omitempty"`
}

// DRBGConfig contains CTR_DRBG settings
type DRBGConfig struct {
	SeedMode        string `yaml:"seed_mode"`
	Personalization string `yaml:"personalization"`
}

// TPM2Config contains TPM 2.0 settings
type TPM2Config struct {
	DevicePath    string `yaml:"device_path"`
	UseSimulator  bool   `yaml:"use_simulator"`
	SimulatorHost string `yaml:"simulator_host"`
	SimulatorPort int    `yaml:"simulator_port"`
}

// PKCS11RNGConfig contains PKCS#11 random source settings
type PKCS11RNGConfig struct {
	Library string `yaml:"library"`
	SlotID  uint   `yaml:"slot_id"`
	Pin     string `yaml:"pin"`
}

// MetricsConfig controls Prometheus instrumentation
type MetricsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	ResourceInterval time.Duration `yaml:"resource_interval"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Keyslots: KeyslotsConfig{Backend: "software", Slots: 16},
		RNG:      RNGConfig{Mode: "software"},
		Metrics:  MetricsConfig{Enabled: true, ResourceInterval: 15 * time.Second},
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, or the defaults with environment overrides
// when path is empty
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Logging
	if level := os.Getenv("KEYENGINE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("KEYENGINE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Engine
	if maxContexts := os.Getenv("KEYENGINE_MAX_CONTEXTS"); maxContexts != "" {
		n, err := strconv.Atoi(maxContexts)
		if err != nil || n < 0 {
			log.Printf("Warning: invalid KEYENGINE_MAX_CONTEXTS value %q, using %d",
				maxContexts, cfg.Engine.MaxContexts)
		} else {
			cfg.Engine.MaxContexts = n
		}
	}

	// Keyslots
	if backend := os.Getenv("KEYENGINE_KEYSLOT_BACKEND"); backend != "" {
		cfg.Keyslots.Backend = backend
	}
	if lib := os.Getenv("PKCS11_LIBRARY"); lib != "" && cfg.Keyslots.PKCS11 != nil {
		cfg.Keyslots.PKCS11.Library = lib
	}
	if pin := os.Getenv("KEYENGINE_PKCS11_PIN"); pin != "" && cfg.Keyslots.PKCS11 != nil {
		cfg.Keyslots.PKCS11.Pin = pin
	}

	// RNG
	if mode := os.Getenv("KEYENGINE_RNG_MODE"); mode != "" {
		cfg.RNG.Mode = mode
	}
	if tpmPath := os.Getenv("TPM_DEVICE_PATH"); tpmPath != "" && cfg.RNG.TPM2 != nil {
		cfg.RNG.TPM2.DevicePath = tpmPath
	}
}

var rngModes = map[string]bool{
	"": true, "auto": true, "software": true, "drbg": true, "tpm2": true, "pkcs11": true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Memory.Limit < 0 {
		return fmt.Errorf("invalid memory limit: %d", c.Memory.Limit)
	}

	switch c.Keyslots.Backend {
	case "software":
	case "pkcs11":
		if c.Keyslots.PKCS11 == nil || c.Keyslots.PKCS11.Library == "" {
			return fmt.Errorf("keyslots pkcs11 library is required for the pkcs11 backend")
		}
	default:
		return fmt.Errorf("invalid keyslot backend: %q (must be software or pkcs11)", c.Keyslots.Backend)
	}
	if c.Keyslots.Slots < 1 || c.Keyslots.Slots > 256 {
		return fmt.Errorf("invalid keyslot count: %d (must be 1-256)", c.Keyslots.Slots)
	}

	if c.Engine.MaxContexts < 0 {
		return fmt.Errorf("invalid max_contexts: %d", c.Engine.MaxContexts)
	}
	if c.Engine.Latency < 0 || c.Engine.PollInterval < 0 || c.Engine.PollLimit < 0 {
		return fmt.Errorf("engine timings must not be negative")
	}

	if !rngModes[c.RNG.Mode] || !rngModes[c.RNG.Fallback] {
		return fmt.Errorf("invalid rng mode: %q/%q", c.RNG.Mode, c.RNG.Fallback)
	}
	usesRNG := func(mode string) bool { return c.RNG.Mode == mode || c.RNG.Fallback == mode }
	if usesRNG("pkcs11") && (c.RNG.PKCS11 == nil || c.RNG.PKCS11.Library == "") {
		return fmt.Errorf("rng pkcs11 library is required for the pkcs11 source")
	}
	if usesRNG("tpm2") && (c.RNG.TPM2 == nil || (c.RNG.TPM2.DevicePath == "" && !c.RNG.TPM2.UseSimulator)) {
		return fmt.Errorf("rng tpm2 device_path or use_simulator is required for the tpm2 source")
	}

	if c.Metrics.ResourceInterval < 0 {
		return fmt.Errorf("invalid metrics resource_interval: %s", c.Metrics.ResourceInterval)
	}
	return nil
}
