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

//go:build tpm2

package rand

import (
	"fmt"
	"sync"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/tcp"
	"github.com/google/go-tpm/tpmutil"
)

const tpm2Compiled = true

type tpm2Source struct {
	mu     sync.Mutex
	rwc    transport.TPMCloser
	config TPM2Config
}

func newTPM2Source(config *TPM2Config) (Source, error) {
	cfg := TPM2Config{Device: "/dev/tpm0"}
	if config != nil {
		cfg = *config
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = 32
	}

	var rwc transport.TPMCloser
	if cfg.UseSimulator {
		if cfg.SimulatorHost == "" {
			cfg.SimulatorHost = "localhost"
		}
		if cfg.SimulatorPort <= 0 {
			cfg.SimulatorPort = 2321
		}
		var err error
		rwc, err = tcp.Open(tcp.Config{
			CommandAddress:  fmt.Sprintf("%s:%d", cfg.SimulatorHost, cfg.SimulatorPort),
			PlatformAddress: fmt.Sprintf("%s:%d", cfg.SimulatorHost, cfg.SimulatorPort+1),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: tpm2 simulator: %v", ErrUnavailable, err)
		}
	} else {
		if cfg.Device == "" {
			cfg.Device = "/dev/tpm0"
		}
		dev, err := tpmutil.OpenTPM(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("%w: tpm2 device %s: %v", ErrUnavailable, cfg.Device, err)
		}
		rwc = transport.FromReadWriteCloser(dev)
	}
	return &tpm2Source{rwc: rwc, config: cfg}, nil
}

// Read issues TPM2_GetRandom in MaxRequestSize chunks.
func (t *tpm2Source) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rwc == nil {
		return 0, ErrClosed
	}

	n := 0
	for n < len(p) {
		want := min(len(p)-n, t.config.MaxRequestSize)
		cmd := tpm2.GetRandom{BytesRequested: uint16(want)}
		rsp, err := cmd.Execute(t.rwc)
		if err != nil {
			return n, fmt.Errorf("rand: TPM2_GetRandom: %w", err)
		}
		n += copy(p[n:], rsp.RandomBytes.Buffer)
	}
	return n, nil
}

func (t *tpm2Source) Name() Mode {
	return ModeTPM2
}

func (t *tpm2Source) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rwc == nil {
		return nil
	}
	err := t.rwc.Close()
	t.rwc = nil
	return err
}
