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

package engine

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// Flags is the lifecycle state of a context. A context with no flags is
// in the RESET state.
type Flags uint8

const (
	FlagInitialized Flags = 1 << iota
	FlagKeySet
	FlagFinalized
	FlagError
)

// String returns the lifecycle state name.
func (f Flags) String() string {
	switch {
	case f&FlagError != 0:
		return "ERROR"
	case f&FlagFinalized != 0:
		return "FINALIZED"
	case f&FlagKeySet != 0:
		return "KEY_SET"
	case f&FlagInitialized != 0:
		return "INITIALIZED"
	default:
		return "RESET"
	}
}

// Context is one operation's lifecycle. It exclusively owns its
// sub-state and key material.
type Context struct {
	engine *Engine
	id     uint64
	domain Domain
	region []byte

	alg   types.Algorithm
	mode  types.Mode
	class types.Class
	flags Flags

	state subState
	key   *keyMaterial
	async *pending

	released bool
}

// pending is an outstanding asynchronous job.
type pending struct {
	op      *hwengine.Op
	final   bool
	written *int
}

// call carries one Perform invocation through the steps.
type call struct {
	ctx context.Context
	e   *Engine
	c   *Context
	req *Request
	op  Op
}

// ID returns the context handle.
func (c *Context) ID() uint64 { return c.id }

// Domain returns the caller domain.
func (c *Context) Domain() Domain { return c.domain }

// Flags returns the lifecycle flags.
func (c *Context) Flags() Flags { return c.flags }

// Class returns the operation class bound at INIT.
func (c *Context) Class() types.Class { return c.class }

// Algorithm returns the algorithm bound at INIT.
func (c *Context) Algorithm() types.Algorithm { return c.alg }

// Mode returns the mode bound at INIT.
func (c *Context) Mode() types.Mode { return c.mode }

// Released reports whether the context has been released.
func (c *Context) Released() bool { return c.released }

func (c *Context) classLabel() string {
	return c.class.String()
}

// admit validates an opcode before any step runs. Rejections here leave
// the context untouched.
func (c *Context) admit(op Op) error {
	if op == 0 {
		return fmt.Errorf("%w: empty opcode", ErrNotSupported)
	}
	if op&^opKnown != 0 {
		return fmt.Errorf("%w: unknown opcode bits %#x", ErrNotSupported, uint32(op&^opKnown))
	}
	if c.flags&FlagError != 0 && op&^(OpReset|OpRelease) != 0 {
		return fmt.Errorf("%w: context %d is in ERROR, only reset or release allowed", ErrBadState, c.id)
	}
	if bits.OnesCount32(uint32(op&opAsync)) > 1 {
		return fmt.Errorf("%w: more than one asynchronous step in %s", ErrInvalidArgument, op)
	}
	if op&opAsync != 0 && op&(OpUpdate|OpDoFinal) != 0 {
		return fmt.Errorf("%w: asynchronous and synchronous data steps in %s", ErrInvalidArgument, op)
	}
	if op&OpUpdate != 0 && op&OpDoFinal != 0 {
		return fmt.Errorf("%w: update and dofinal in one request", ErrInvalidArgument)
	}
	if op&OpRelease != 0 && c.domain == DomainKernel {
		return fmt.Errorf("%w: kernel contexts are not released through the engine", ErrNotSupported)
	}
	return nil
}

// mustState returns the sub-state, panicking if it does not belong to the
// bound class. A mismatch means the context was corrupted.
func (c *Context) mustState() subState {
	if c.state == nil || c.state.class() != c.class {
		panic(fmt.Sprintf("engine: context %d sub-state does not match class %s", c.id, c.class))
	}
	return c.state
}

func (c *Context) runStep(cl *call, step Op, res *Result) error {
	switch step {
	case OpInit:
		return c.doInit(cl)
	case OpSetKey:
		return c.doSetKey(cl)
	case OpAsyncUpdateStart:
		return c.doAsyncStart(cl, false)
	case OpAsyncDoFinalStart:
		return c.doAsyncStart(cl, true)
	case OpAsyncFinish:
		return c.doAsyncFinish(cl, res)
	case OpAsyncCheck:
		return c.doAsyncCheck(cl, res)
	case OpUpdate:
		return c.doUpdate(cl, res)
	case OpDoFinal:
		return c.doDoFinal(cl, res)
	case OpReset:
		c.teardown()
		return nil
	case OpRelease:
		c.teardown()
		cl.e.release(c)
		return nil
	default:
		return ErrNotSupported
	}
}

func (c *Context) doInit(cl *call) error {
	if c.flags != 0 {
		return fmt.Errorf("%w: init in state %s", ErrBadState, c.flags)
	}
	class, err := ClassOf(cl.req.Algorithm, cl.req.Mode)
	if err != nil {
		return fmt.Errorf("engine: %s/%s: %w", cl.req.Algorithm, cl.req.Mode, err)
	}
	c.alg, c.mode, c.class = cl.req.Algorithm, cl.req.Mode, class

	state, err := newState(cl, class)
	if err != nil {
		return err
	}
	c.state = state
	c.flags |= FlagInitialized
	return nil
}

func (c *Context) doSetKey(cl *call) error {
	if c.flags&FlagInitialized == 0 || c.flags&(FlagKeySet|FlagFinalized) != 0 {
		return fmt.Errorf("%w: set key in state %s", ErrBadState, c.flags)
	}
	if !CapabilitiesOf(c.class).Has(CapSetKey) {
		if cl.op == OpSetKey {
			return fmt.Errorf("%w: class %s takes no key", ErrNotSupported, c.class)
		}
		return nil
	}
	if cl.req.Key == nil {
		return fmt.Errorf("%w: no key", ErrInvalidArgument)
	}
	if err := c.mustState().setKey(cl, cl.req.Key); err != nil {
		return err
	}
	c.flags |= FlagKeySet
	return nil
}

// ready checks the state shared by every data step.
func (c *Context) ready() error {
	if c.flags&FlagInitialized == 0 || c.flags&FlagFinalized != 0 {
		return fmt.Errorf("%w: data step in state %s", ErrBadState, c.flags)
	}
	if CapabilitiesOf(c.class).Has(CapSetKey) && c.flags&FlagKeySet == 0 {
		return fmt.Errorf("%w: no key set", ErrBadState)
	}
	if c.async != nil {
		return fmt.Errorf("%w: asynchronous job outstanding", ErrBadState)
	}
	return nil
}

func (c *Context) doUpdate(cl *call, res *Result) error {
	if err := c.ready(); err != nil {
		return err
	}
	if !CapabilitiesOf(c.class).Has(CapUpdate) {
		return fmt.Errorf("%w: class %s has no update", ErrNotSupported, c.class)
	}
	n, err := c.mustState().update(cl, &cl.req.Data)
	res.Written += n
	return err
}

func (c *Context) doDoFinal(cl *call, res *Result) error {
	if err := c.ready(); err != nil {
		return err
	}
	n, err := c.mustState().doFinal(cl, &cl.req.Data)
	res.Written += n
	if err != nil {
		return err
	}
	c.flags |= FlagFinalized
	return nil
}

func (c *Context) doAsyncStart(cl *call, final bool) error {
	if !CapabilitiesOf(c.class).Has(CapAsync) {
		return fmt.Errorf("%w: class %s has no asynchronous steps", ErrNotSupported, c.class)
	}
	if err := c.ready(); err != nil {
		return err
	}
	as, ok := c.mustState().(asyncState)
	if !ok {
		panic(fmt.Sprintf("engine: class %s advertises async without support", c.class))
	}
	op, written, err := as.start(cl, &cl.req.Data, final)
	if err != nil {
		return err
	}
	c.async = &pending{op: op, final: final, written: written}
	return nil
}

func (c *Context) doAsyncFinish(cl *call, res *Result) error {
	if !CapabilitiesOf(c.class).Has(CapAsync) {
		return fmt.Errorf("%w: class %s has no asynchronous steps", ErrNotSupported, c.class)
	}
	p := c.async
	if p == nil {
		return fmt.Errorf("%w: no asynchronous job outstanding", ErrBadState)
	}
	if err := cl.e.sw.Finish(cl.ctx, p.op); err != nil {
		return err
	}
	c.async = nil
	res.Written += *p.written
	if p.final {
		c.flags |= FlagFinalized
	}
	return nil
}

func (c *Context) doAsyncCheck(cl *call, res *Result) error {
	if c.flags&FlagInitialized == 0 {
		return fmt.Errorf("%w: check in state %s", ErrBadState, c.flags)
	}
	if !CapabilitiesOf(c.class).Has(CapAsync) {
		return fmt.Errorf("%w: class %s has no asynchronous steps", ErrNotSupported, c.class)
	}
	if c.async == nil {
		res.Async = hwengine.StatusNone
		return nil
	}
	res.Async = cl.e.sw.Check(c.async.op)
	return nil
}

// teardown zeroes and frees everything the context owns and returns it
// to RESET. An abandoned job is waited for before its buffers are freed.
func (c *Context) teardown() {
	if c.async != nil {
		c.engine.sw.Discard(c.async.op)
		<-c.async.op.Done()
		c.async = nil
	}
	if c.state != nil {
		c.state.teardown(c.engine)
		c.state = nil
	}
	if c.key != nil {
		c.key.release(c.engine)
		c.key = nil
	}
	c.alg, c.mode, c.class = types.AlgorithmNone, types.ModeNone, types.ClassNone
	c.flags = 0
}
