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

// Package hwengine emulates the hardware engine switch: one physical
// engine per kind (symmetric cipher, digest, asymmetric, random), each
// guarded by its own mutex that is held only while a job runs.
//
// Jobs run synchronously through Run or asynchronously through Start,
// Check and Finish. Finish polls a bounded number of times and reports
// ErrTimedOut when the job has not completed.
package hwengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jeremyhahn/go-keyengine/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/logging"
	"github.com/jeremyhahn/go-keyengine/pkg/metrics"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// Kind identifies a physical engine.
type Kind uint8

const (
	KindCipher Kind = iota
	KindDigest
	KindAsym
	KindRNG
	numKinds
)

// String returns the engine name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindCipher:
		return "cipher"
	case KindDigest:
		return "digest"
	case KindAsym:
		return "asym"
	case KindRNG:
		return "rng"
	default:
		return "unknown"
	}
}

// Defaults for Config fields left zero.
const (
	DefaultPollInterval = 100 * time.Microsecond
	DefaultPollLimit    = 10000
)

var (
	// ErrTimedOut is returned when an asynchronous job outlives the poll bound.
	ErrTimedOut = fmt.Errorf("hwengine: job did not complete: %w", types.ErrTimedOut)

	// ErrNoRNG is returned when the switch has no random source.
	ErrNoRNG = fmt.Errorf("hwengine: no random source configured: %w", types.ErrNotSupported)

	// ErrNoBank is returned for keyslot operations without a bank.
	ErrNoBank = fmt.Errorf("hwengine: no keyslot bank configured: %w", types.ErrNotSupported)
)

// Config configures a Switch.
type Config struct {
	// Bank holds the hardware keyslots. Defaults to a software bank.
	Bank keyslot.Bank

	// RNG backs the random engine. Defaults to crypto/rand.
	RNG *rand.Resolver

	// Latency is added to every job to model engine processing time.
	Latency time.Duration

	// PollInterval paces Finish; PollLimit bounds the number of polls.
	PollInterval time.Duration
	PollLimit    int

	Logger *logging.Logger
}

// Switch routes jobs to the physical engines.
type Switch struct {
	locks        [numKinds]sync.Mutex
	bank         keyslot.Bank
	rng          *rand.Resolver
	latency      time.Duration
	pollInterval time.Duration
	pollLimit    int
	logger       *logging.Logger
}

// New creates a Switch. A nil config uses a software bank and crypto/rand.
func New(config *Config) *Switch {
	if config == nil {
		config = &Config{}
	}
	s := &Switch{
		bank:         config.Bank,
		rng:          config.RNG,
		latency:      config.Latency,
		pollInterval: config.PollInterval,
		pollLimit:    config.PollLimit,
		logger:       config.Logger,
	}
	if s.bank == nil {
		s.bank = keyslot.NewSoftwareBank(0)
	}
	if s.rng == nil {
		s.rng = rand.NewSourceResolver(rand.Software())
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.pollLimit <= 0 {
		s.pollLimit = DefaultPollLimit
	}
	if s.logger == nil {
		s.logger = logging.DefaultLogger()
	}
	return s
}

// Bank returns the keyslot bank.
func (s *Switch) Bank() keyslot.Bank {
	return s.bank
}

// exec runs fn holding the engine lock.
func (s *Switch) exec(kind Kind, fn func() error) error {
	l := &s.locks[kind]
	l.Lock()
	defer l.Unlock()

	metrics.SetEngineBusy(kind.String(), true)
	defer metrics.SetEngineBusy(kind.String(), false)

	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	return fn()
}

// Run executes fn on the engine and waits for it. ctx is checked before
// the engine is claimed.
func (s *Switch) Run(ctx context.Context, kind Kind, fn func() error) error {
	if kind >= numKinds {
		return types.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.exec(kind, fn)
}

// Random fills p from the random engine.
func (s *Switch) Random(ctx context.Context, p []byte) error {
	if s.rng == nil {
		return ErrNoRNG
	}
	return s.Run(ctx, KindRNG, func() error {
		_, err := s.rng.Read(p)
		return err
	})
}
