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

package rand

import (
	"fmt"
	"io"
	"sync"

	drbg "github.com/canonical/go-sp800.90a-drbg"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

const (
	// drbgKeyLen selects AES-256 for the CTR_DRBG.
	drbgKeyLen = 32

	drbgEntropyLen = 32
	drbgNonceLen   = 16
)

type drbgSource struct {
	mu   sync.Mutex
	rng  *drbg.DRBG
	seed Source
}

func openDRBG(config *Config) (Source, error) {
	dc := config.DRBG
	if dc == nil {
		dc = &DRBGConfig{}
	}
	seedMode := dc.SeedMode
	if seedMode == "" {
		seedMode = ModeSoftware
	}
	if seedMode == ModeDRBG {
		return nil, fmt.Errorf("rand: DRBG cannot seed itself: %w", types.ErrInvalidArgument)
	}
	seed, err := open(seedMode, config)
	if err != nil {
		return nil, err
	}
	src, err := NewDRBG(seed, dc.Personalization)
	if err != nil {
		_ = seed.Close()
		return nil, err
	}
	return src, nil
}

// NewDRBG instantiates a CTR_DRBG from seed. The seed source also
// supplies entropy for automatic reseeding and is closed with the DRBG.
func NewDRBG(seed Source, personalization []byte) (Source, error) {
	material := make([]byte, drbgEntropyLen+drbgNonceLen)
	defer clear(material)
	if _, err := io.ReadFull(seed, material); err != nil {
		return nil, fmt.Errorf("rand: read DRBG seed: %w", err)
	}
	rng, err := drbg.NewCTRWithExternalEntropy(drbgKeyLen,
		material[:drbgEntropyLen], material[drbgEntropyLen:], personalization, seed)
	if err != nil {
		return nil, fmt.Errorf("rand: instantiate DRBG: %w", err)
	}
	return &drbgSource{rng: rng, seed: seed}, nil
}

func (d *drbgSource) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rng == nil {
		return 0, ErrClosed
	}
	return d.rng.Read(p)
}

func (d *drbgSource) Name() Mode {
	return ModeDRBG
}

func (d *drbgSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rng == nil {
		return nil
	}
	d.rng = nil
	return d.seed.Close()
}
