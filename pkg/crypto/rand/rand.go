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

// Package rand provides the entropy sources behind the random number
// engine. A Resolver wraps a primary Source and an optional fallback and
// is safe for concurrent use.
//
// Sources:
//   - software: crypto/rand
//   - drbg: an SP 800-90A CTR_DRBG (AES-256) seeded from another source
//   - tpm2: TPM2_GetRandom (build tag tpm2)
//   - pkcs11: C_GenerateRandom (build tag pkcs11)
//   - auto: the best available hardware source, else software
package rand

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// Mode selects an entropy source.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeSoftware Mode = "software"
	ModeDRBG     Mode = "drbg"
	ModeTPM2     Mode = "tpm2"
	ModePKCS11   Mode = "pkcs11"
)

// ParseMode parses a configured mode name. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeSoftware, ModeDRBG, ModeTPM2, ModePKCS11:
		return m, nil
	default:
		return "", fmt.Errorf("rand: unknown mode %q: %w", s, types.ErrInvalidArgument)
	}
}

// Config configures a Resolver.
type Config struct {
	Mode     Mode
	Fallback Mode

	// DRBG configures ModeDRBG. Its seed source is SeedMode.
	DRBG *DRBGConfig

	TPM2   *TPM2Config
	PKCS11 *PKCS11Config
}

// DRBGConfig configures the CTR_DRBG source.
type DRBGConfig struct {
	// SeedMode is the source of entropy input and nonce. Defaults to
	// ModeSoftware and may not be ModeDRBG.
	SeedMode Mode

	// Personalization is mixed into the instantiation.
	Personalization []byte
}

// TPM2Config configures the TPM2 source.
type TPM2Config struct {
	Device        string
	UseSimulator  bool
	SimulatorHost string
	SimulatorPort int

	// MaxRequestSize caps a single TPM2_GetRandom request. Default 32.
	MaxRequestSize int
}

// PKCS11Config configures the PKCS#11 source.
type PKCS11Config struct {
	Module string
	SlotID uint
	PIN    string
}

// Source is one entropy source.
type Source interface {
	io.Reader
	Name() Mode
	Close() error
}

var (
	// ErrUnavailable is returned when a source is not compiled in or
	// cannot be opened.
	ErrUnavailable = fmt.Errorf("rand: source unavailable: %w", types.ErrNotSupported)

	// ErrClosed is returned by a closed source.
	ErrClosed = fmt.Errorf("rand: source closed: %w", types.ErrBadState)
)

// Resolver reads from its primary source and, on failure, from the
// fallback source.
type Resolver struct {
	mu       sync.RWMutex
	primary  Source
	fallback Source
}

// NewResolver opens the sources named by config. A nil config is
// equivalent to ModeAuto without fallback.
func NewResolver(config *Config) (*Resolver, error) {
	if config == nil {
		config = &Config{Mode: ModeAuto}
	}
	primary, err := open(config.Mode, config)
	if err != nil {
		if config.Fallback == "" {
			return nil, err
		}
		primary = nil
	}

	var fallback Source
	if config.Fallback != "" && config.Fallback != config.Mode {
		fallback, err = open(config.Fallback, config)
		if err != nil {
			if primary != nil {
				_ = primary.Close()
			}
			return nil, err
		}
	}
	if primary == nil {
		primary, fallback = fallback, nil
	}
	return &Resolver{primary: primary, fallback: fallback}, nil
}

// NewSourceResolver wraps an existing source.
func NewSourceResolver(primary Source) *Resolver {
	return &Resolver{primary: primary}
}

func open(mode Mode, config *Config) (Source, error) {
	switch mode {
	case "", ModeAuto:
		return openAuto(config)
	case ModeSoftware:
		return Software(), nil
	case ModeDRBG:
		return openDRBG(config)
	case ModeTPM2:
		return newTPM2Source(config.TPM2)
	case ModePKCS11:
		return newPKCS11Source(config.PKCS11)
	default:
		return nil, fmt.Errorf("rand: unknown mode %q: %w", mode, types.ErrInvalidArgument)
	}
}

// Read fills p, using the fallback source if the primary fails.
func (r *Resolver) Read(p []byte) (int, error) {
	r.mu.RLock()
	primary, fallback := r.primary, r.fallback
	r.mu.RUnlock()

	if primary == nil {
		return 0, ErrClosed
	}
	n, err := io.ReadFull(primary, p)
	if err != nil && fallback != nil {
		n, err = io.ReadFull(fallback, p)
	}
	return n, err
}

// Rand returns n fresh random bytes.
func (r *Resolver) Rand(n int) ([]byte, error) {
	if n < 0 {
		return nil, types.ErrInvalidArgument
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Mode returns the name of the primary source.
func (r *Resolver) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.primary == nil {
		return ""
	}
	return r.primary.Name()
}

// Close closes both sources.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.primary != nil {
		err = r.primary.Close()
		r.primary = nil
	}
	if r.fallback != nil {
		if ferr := r.fallback.Close(); err == nil {
			err = ferr
		}
		r.fallback = nil
	}
	return err
}

type softwareSource struct{}

// Software returns the crypto/rand source.
func Software() Source {
	return softwareSource{}
}

func (softwareSource) Read(p []byte) (int, error) { return rand.Read(p) }
func (softwareSource) Name() Mode                 { return ModeSoftware }
func (softwareSource) Close() error               { return nil }
