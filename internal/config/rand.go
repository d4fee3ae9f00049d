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
	"github.com/jeremyhahn/go-keyengine/pkg/crypto/rand"
)

// RandConfig converts the rng section into a resolver configuration
func (c *Config) RandConfig() (*rand.Config, error) {
	mode, err := rand.ParseMode(c.RNG.Mode)
	if err != nil {
		return nil, err
	}
	rc := &rand.Config{Mode: mode}
	if c.RNG.Fallback != "" {
		if rc.Fallback, err = rand.ParseMode(c.RNG.Fallback); err != nil {
			return nil, err
		}
	}
	if d := c.RNG.DRBG; d != nil {
		seed, err := rand.ParseMode(d.SeedMode)
		if err != nil {
			return nil, err
		}
		if d.SeedMode == "" {
			seed = rand.ModeSoftware
		}
		rc.DRBG = &rand.DRBGConfig{SeedMode: seed, Personalization: []byte(d.Personalization)}
	}
	if t := c.RNG.TPM2; t != nil {
		rc.TPM2 = &rand.TPM2Config{
			Device:        t.DevicePath,
			UseSimulator:  t.UseSimulator,
			SimulatorHost: t.SimulatorHost,
			SimulatorPort: t.SimulatorPort,
		}
	}
	if p := c.RNG.PKCS11; p != nil {
		rc.PKCS11 = &rand.PKCS11Config{Module: p.Library, SlotID: p.SlotID, PIN: p.Pin}
	}
	return rc, nil
}
