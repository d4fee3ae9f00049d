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

// Package engine implements the context based crypto operation engine.
//
// A caller creates a Context and drives it with Perform, passing a
// Request whose Op field selects the lifecycle steps to run. Steps always
// execute in the order INIT, SET_KEY, the asynchronous steps, UPDATE,
// DOFINAL, RESET, RELEASE, regardless of how the bits were combined.
//
//	c, _ := e.NewContext(engine.DomainKernel, nil)
//	res, err := e.Perform(c, &engine.Request{
//	    Op:        engine.OpOneShot,
//	    Algorithm: types.AlgorithmHMACSHA256,
//	    Mode:      types.ModeMAC,
//	    Key:       engine.SymmetricKey{Value: key},
//	    Data:      engine.DataArgs{Src: engine.Bytes(msg), Dst: engine.Bytes(tag)},
//	})
//
// A failed step moves the context to ERROR, tears down its key material
// and sub-state and, for isolated callers, releases it. Only RESET and
// RELEASE are accepted in ERROR.
//
// A Context is not safe for concurrent use. Distinct contexts may be
// used from different goroutines; they contend only on the hardware
// engines they share.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-keyengine/pkg/correlation"
	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/logging"
	"github.com/jeremyhahn/go-keyengine/pkg/memory"
	"github.com/jeremyhahn/go-keyengine/pkg/metrics"
)

// ErrClosed is returned when creating contexts on a closed engine.
var ErrClosed = fmt.Errorf("engine: closed: %w", ErrBadState)

// Config configures an Engine.
type Config struct {
	// Switch routes jobs to the hardware engines. Defaults to a software
	// emulation with a software keyslot bank.
	Switch *hwengine.Switch

	// Memory supplies key and scratch buffers. Defaults to an unbounded pool.
	Memory memory.Provider

	// MaxContexts bounds the live isolated contexts. Zero means unbounded.
	MaxContexts int

	Logger *logging.Logger
}

// Engine owns the handle counter, the registry of live isolated contexts
// and the collaborators every context uses.
type Engine struct {
	sw          *hwengine.Switch
	mem         memory.Provider
	logger      *logging.Logger
	maxContexts int

	nextID atomic.Uint64

	mu     sync.Mutex
	live   map[uint64]*Context
	closed bool
}

// New creates an Engine.
func New(config *Config) *Engine {
	if config == nil {
		config = &Config{}
	}
	e := &Engine{
		sw:          config.Switch,
		mem:         config.Memory,
		logger:      config.Logger,
		maxContexts: config.MaxContexts,
		live:        make(map[uint64]*Context),
	}
	if e.logger == nil {
		e.logger = logging.DefaultLogger()
	}
	if e.sw == nil {
		e.sw = hwengine.New(&hwengine.Config{Logger: e.logger})
	}
	if e.mem == nil {
		e.mem = memory.NewPool(nil)
	}
	return e
}

// Switch returns the hardware engine switch.
func (e *Engine) Switch() *hwengine.Switch {
	return e.sw
}

// NewContext creates a context in the RESET state. region is the memory
// an isolated caller shares with the engine and must be nil for kernel
// callers.
func (e *Engine) NewContext(domain Domain, region []byte) (*Context, error) {
	switch domain {
	case DomainKernel:
		if region != nil {
			return nil, fmt.Errorf("%w: kernel contexts have no region", ErrInvalidArgument)
		}
	case DomainIsolated:
	default:
		return nil, fmt.Errorf("%w: unknown domain %d", ErrInvalidArgument, domain)
	}

	c := &Context{
		engine: e,
		id:     e.nextID.Add(1),
		domain: domain,
		region: region,
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if domain == DomainIsolated {
		if e.maxContexts > 0 && len(e.live) >= e.maxContexts {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %d live contexts", ErrNoMemory, len(e.live))
		}
		e.live[c.id] = c
	}
	e.mu.Unlock()

	metrics.IncrementContexts(domain.String())
	e.logger.Debug("context created", "id", c.id, "domain", domain.String())
	return c, nil
}

// Live returns the number of live isolated contexts.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// release removes an isolated context from the registry.
func (e *Engine) release(c *Context) {
	e.mu.Lock()
	delete(e.live, c.id)
	e.mu.Unlock()

	c.released = true
	metrics.DecrementContexts(c.domain.String())
	e.logger.Debug("context released", "id", c.id)
}

// Close releases every live isolated context. Kernel contexts are owned
// by their callers and are left untouched.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	live := make([]*Context, 0, len(e.live))
	for _, c := range e.live {
		live = append(live, c)
	}
	e.mu.Unlock()

	for _, c := range live {
		c.teardown()
		e.release(c)
	}
	return nil
}

// Perform runs the steps of req on c.
func (e *Engine) Perform(c *Context, req *Request) (*Result, error) {
	return e.PerformContext(context.Background(), c, req)
}

// PerformContext is Perform with a context bounding engine waits.
func (e *Engine) PerformContext(ctx context.Context, c *Context, req *Request) (*Result, error) {
	if c == nil || req == nil || c.engine != e {
		return nil, ErrInvalidArgument
	}
	if c.released {
		return nil, fmt.Errorf("%w: context %d released", ErrBadState, c.id)
	}

	op := req.Op.expand()
	if err := c.admit(op); err != nil {
		metrics.RecordError(c.class.String(), errorType(err))
		return nil, err
	}

	res := &Result{}
	cl := &call{ctx: ctx, e: e, c: c, req: req, op: op}
	for _, step := range stepOrder {
		if op&step == 0 {
			continue
		}
		res.Steps++
		start := time.Now()
		err := c.runStep(cl, step, res)
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
		}
		metrics.RecordOperation(c.classLabel(), opNames[step], status, time.Since(start).Seconds())
		if err != nil {
			e.fail(ctx, c, step, err)
			return res, err
		}
	}
	if res.Steps == 0 {
		return res, ErrNotSupported
	}
	return res, nil
}

// fail moves c to ERROR and forces cleanup. The ERROR flag survives the
// cleanup so the caller observes it until an explicit RESET.
func (e *Engine) fail(ctx context.Context, c *Context, step Op, err error) {
	class := c.classLabel()
	metrics.RecordError(class, errorType(err))
	kv := []any{"id", c.id, "step", opNames[step], "class", class, "error", err.Error()}
	if id := correlation.ID(ctx); id != "" {
		kv = append(kv, correlation.LogKey, id)
	}
	e.logger.Warn("step failed, forcing cleanup", kv...)

	c.flags |= FlagError
	c.teardown()
	c.flags = FlagError
	if c.domain == DomainIsolated {
		e.release(c)
	}
}
