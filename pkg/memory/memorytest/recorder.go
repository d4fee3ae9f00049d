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

// Package memorytest provides an instrumented memory provider that remembers
// every buffer it handed out so tests can scan them after release.
package memorytest

import (
	"sync"

	"github.com/jeremyhahn/go-keyengine/pkg/memory"
)

type record struct {
	buf *memory.Buffer
	raw []byte
}

// Recorder wraps a Provider and keeps a view of each allocated buffer's
// backing bytes that survives Release.
type Recorder struct {
	mu      sync.Mutex
	next    memory.Provider
	records []record
	fail    map[memory.Purpose]bool
}

var _ memory.Provider = (*Recorder)(nil)

// NewRecorder wraps next, or a fresh unlimited pool when next is nil.
func NewRecorder(next memory.Provider) *Recorder {
	if next == nil {
		next = memory.NewPool(nil)
	}
	return &Recorder{
		next: next,
		fail: make(map[memory.Purpose]bool),
	}
}

// FailPurpose makes subsequent allocations for purpose fail with
// memory.ErrExhausted.
func (r *Recorder) FailPurpose(purpose memory.Purpose, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[purpose] = fail
}

// Alloc implements memory.Provider.
func (r *Recorder) Alloc(purpose memory.Purpose, size int) (*memory.Buffer, error) {
	r.mu.Lock()
	fail := r.fail[purpose]
	r.mu.Unlock()
	if fail {
		return nil, memory.ErrExhausted
	}

	buf, err := r.next.Alloc(purpose, size)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.records = append(r.records, record{buf: buf, raw: buf.Bytes()})
	r.mu.Unlock()
	return buf, nil
}

// Release implements memory.Provider.
func (r *Recorder) Release(buf *memory.Buffer) {
	r.next.Release(buf)
}

// Allocated returns the number of buffers handed out so far.
func (r *Recorder) Allocated(purpose memory.Purpose) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.buf.Purpose() == purpose {
			n++
		}
	}
	return n
}

// Live returns the number of buffers not yet released.
func (r *Recorder) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if !rec.buf.Released() {
			n++
		}
	}
	return n
}

// ReleasedAllZero reports whether every released buffer contains only zero
// bytes.
func (r *Recorder) ReleasedAllZero() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if !rec.buf.Released() {
			continue
		}
		for _, b := range rec.raw {
			if b != 0 {
				return false
			}
		}
	}
	return true
}
