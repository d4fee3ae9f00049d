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

// Package memory is the engine's key and memory provider. It hands out
// purpose-tagged buffers for scratch data, DMA transfers and key material,
// and is the only party that zeroes and frees them.
//
// Every buffer is zeroed on Release regardless of purpose. Key buffers are
// additionally locked into RAM when the pool is configured to do so and the
// platform supports it.
//
//	buf, err := pool.Alloc(memory.PurposeKey, 32)
//	if err != nil {
//	    return err
//	}
//	defer pool.Release(buf)
package memory

import (
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// Purpose tags a buffer with what it will hold.
type Purpose uint8

const (
	// PurposeGeneric is plain scratch memory.
	PurposeGeneric Purpose = iota

	// PurposeDMA is memory handed to an engine transfer. Its capacity is
	// rounded up to a whole number of DMA lines.
	PurposeDMA

	// PurposeKey holds secret key material.
	PurposeKey
)

// DMALineSize is the granularity DMA buffers are rounded up to.
const DMALineSize = 64

// String returns the purpose name.
func (p Purpose) String() string {
	switch p {
	case PurposeGeneric:
		return "generic"
	case PurposeDMA:
		return "dma"
	case PurposeKey:
		return "key"
	default:
		return "unknown"
	}
}

var (
	// ErrExhausted is returned when an allocation would exceed the pool limit.
	ErrExhausted = fmt.Errorf("memory: pool exhausted: %w", types.ErrNoMemory)

	// ErrInvalidSize is returned for negative allocation sizes.
	ErrInvalidSize = fmt.Errorf("memory: invalid buffer size: %w", types.ErrInvalidArgument)
)

// Provider supplies and reclaims purpose-tagged buffers.
type Provider interface {
	// Alloc returns a zero-filled buffer of exactly size usable bytes.
	Alloc(purpose Purpose, size int) (*Buffer, error)

	// Release zeroes the buffer and returns it to the provider. Releasing a
	// nil or already released buffer is a no-op.
	Release(buf *Buffer)
}

// Buffer is memory owned by a Provider.
type Buffer struct {
	data     []byte
	size     int
	purpose  Purpose
	locked   bool
	released bool
}

// Bytes returns the usable bytes, or nil once the buffer is released.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.released {
		return nil
	}
	return b.data[:b.size]
}

// Len returns the usable size.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return b.size
}

// Purpose returns the purpose the buffer was allocated for.
func (b *Buffer) Purpose() Purpose {
	return b.purpose
}

// Locked reports whether the buffer is locked into RAM.
func (b *Buffer) Locked() bool {
	return b.locked
}

// Released reports whether the buffer has been released.
func (b *Buffer) Released() bool {
	return b.released
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
}

// Config contains pool configuration.
type Config struct {
	// Limit caps the total bytes outstanding. Zero means unlimited.
	Limit int

	// LockKeys locks PurposeKey buffers into RAM where supported.
	LockKeys bool
}

// Pool is the default Provider backed by the Go heap.
type Pool struct {
	mu     sync.Mutex
	config Config
	inUse  int
}

var _ Provider = (*Pool)(nil)

// NewPool creates a pool. A nil config means unlimited and unlocked.
func NewPool(config *Config) *Pool {
	p := &Pool{}
	if config != nil {
		p.config = *config
	}
	return p
}

// Alloc implements Provider.
func (p *Pool) Alloc(purpose Purpose, size int) (*Buffer, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}

	capacity := size
	if purpose == PurposeDMA && capacity%DMALineSize != 0 {
		capacity += DMALineSize - capacity%DMALineSize
	}

	p.mu.Lock()
	if p.config.Limit > 0 && p.inUse+capacity > p.config.Limit {
		p.mu.Unlock()
		return nil, ErrExhausted
	}
	p.inUse += capacity
	p.mu.Unlock()

	buf := &Buffer{
		data:    make([]byte, capacity),
		size:    size,
		purpose: purpose,
	}
	if purpose == PurposeKey && p.config.LockKeys && capacity > 0 {
		// Locking is best effort; an unlocked key buffer is still zeroed.
		buf.locked = lock(buf.data) == nil
	}
	return buf, nil
}

// Release implements Provider.
func (p *Pool) Release(buf *Buffer) {
	if buf == nil || buf.released {
		return
	}
	Zero(buf.data)
	if buf.locked {
		_ = unlock(buf.data)
		buf.locked = false
	}
	buf.released = true

	p.mu.Lock()
	p.inUse -= len(buf.data)
	p.mu.Unlock()
}

// InUse returns the bytes currently outstanding.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}
