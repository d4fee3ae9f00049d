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

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-keyengine/internal/config"
	"github.com/jeremyhahn/go-keyengine/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keyengine/pkg/engine"
	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/logging"
	"github.com/jeremyhahn/go-keyengine/pkg/memory"
	"github.com/jeremyhahn/go-keyengine/pkg/metrics"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the engine configuration file
	ConfigFile string

	// OutputFormat controls output formatting (json, text)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
	}
}

// bind copies the resolved flag and environment values into c
func (c *Config) bind(v *viper.Viper) error {
	c.ConfigFile = v.GetString("config")
	c.OutputFormat = v.GetString("output")
	c.Verbose = v.GetBool("verbose")

	switch OutputFormat(c.OutputFormat) {
	case OutputFormatText, OutputFormatJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", c.OutputFormat)
	}
}

// EngineConfig loads the engine configuration named by ConfigFile
func (c *Config) EngineConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(c.ConfigFile)
	if err != nil {
		return nil, err
	}
	if c.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// session owns an engine and the resources it was built from
type session struct {
	engine    *engine.Engine
	pool      *memory.Pool
	rng       *rand.Resolver
	bank      keyslot.Bank
	collector *metrics.ResourceCollector
	logger    *logging.Logger
}

// newSession builds an engine from cfg
func newSession(cfg *config.Config, logOutput io.Writer) (*session, error) {
	logger := logging.New(&logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOutput,
	})

	s := &session{
		logger: logger,
		pool: memory.NewPool(&memory.Config{
			Limit:    cfg.Memory.Limit,
			LockKeys: cfg.Memory.LockKeys,
		}),
	}

	bank, err := newBank(cfg)
	if err != nil {
		return nil, err
	}
	s.bank = bank

	rc, err := cfg.RandConfig()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.rng, err = rand.NewResolver(rc); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to open random source: %w", err)
	}

	sw := hwengine.New(&hwengine.Config{
		Bank:         s.bank,
		RNG:          s.rng,
		Latency:      cfg.Engine.Latency,
		PollInterval: cfg.Engine.PollInterval,
		PollLimit:    cfg.Engine.PollLimit,
		Logger:       logger,
	})
	s.engine = engine.New(&engine.Config{
		Switch:      sw,
		Memory:      s.pool,
		MaxContexts: cfg.Engine.MaxContexts,
		Logger:      logger,
	})

	if cfg.Metrics.Enabled {
		metrics.Enable()
		if cfg.Metrics.ResourceInterval > 0 {
			s.collector = metrics.StartResourceCollector(context.Background(), cfg.Metrics.ResourceInterval, s.pool)
		}
	} else {
		metrics.Disable()
	}

	logger.Debug("engine ready",
		"keyslots", cfg.Keyslots.Backend,
		"slots", s.bank.Slots(),
		"rng", s.rng.Mode())
	return s, nil
}

func newBank(cfg *config.Config) (keyslot.Bank, error) {
	switch cfg.Keyslots.Backend {
	case "", "software":
		return keyslot.NewSoftwareBank(cfg.Keyslots.Slots), nil
	case "pkcs11":
		p := cfg.Keyslots.PKCS11
		bank, err := keyslot.NewPKCS11Bank(&keyslot.PKCS11Config{
			Module:      p.Library,
			TokenLabel:  p.Token,
			SlotID:      p.SlotID,
			PIN:         p.Pin,
			Slots:       cfg.Keyslots.Slots,
			LabelPrefix: p.LabelPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open PKCS#11 keyslots: %w", err)
		}
		return bank, nil
	default:
		return nil, fmt.Errorf("unknown keyslot backend: %s", cfg.Keyslots.Backend)
	}
}

// Close tears down the engine and releases the bank and random source
func (s *session) Close() error {
	if s.collector != nil {
		s.collector.Stop()
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.engine != nil {
		keep(s.engine.Close())
	}
	if s.rng != nil {
		keep(s.rng.Close())
	}
	if closer, ok := s.bank.(io.Closer); ok {
		keep(closer.Close())
	}
	return firstErr
}

// openSession loads the configured engine for a command
func openSession() (*session, error) {
	cfg, err := getConfig().EngineConfig()
	if err != nil {
		return nil, err
	}
	printVerbose("keyslot backend %s, rng mode %s", cfg.Keyslots.Backend, cfg.RNG.Mode)
	return newSession(cfg, nil)
}
