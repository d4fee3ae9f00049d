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

package hwengine

import (
	"context"
	"sync/atomic"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
	"golang.org/x/time/rate"
)

// Status is the result of polling an asynchronous job.
type Status uint8

const (
	// StatusNone means no job is outstanding.
	StatusNone Status = iota
	// StatusIdle means the job has completed and awaits Finish.
	StatusIdle
	// StatusBusy means the job is still running.
	StatusBusy
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Op is an asynchronous engine job.
type Op struct {
	kind Kind
	done chan struct{}
	err  error
	// finished is set once Finish has consumed the result.
	finished atomic.Bool
}

// Kind returns the engine the job runs on.
func (op *Op) Kind() Kind {
	return op.kind
}

// Done is closed once the engine has stopped running the job.
func (op *Op) Done() <-chan struct{} {
	return op.done
}

// Start queues fn on the engine and returns immediately.
func (s *Switch) Start(kind Kind, fn func() error) (*Op, error) {
	if kind != KindCipher && kind != KindDigest {
		return nil, types.ErrNotSupported
	}
	op := &Op{kind: kind, done: make(chan struct{})}
	go func() {
		defer close(op.done)
		op.err = s.exec(kind, fn)
	}()
	return op, nil
}

// Check polls a job without blocking. A nil or finished job reports
// StatusNone.
func (s *Switch) Check(op *Op) Status {
	if op == nil || op.finished.Load() {
		return StatusNone
	}
	select {
	case <-op.done:
		return StatusIdle
	default:
		return StatusBusy
	}
}

// Finish waits for a job in at most PollLimit polls spaced PollInterval
// apart, and returns the job's own error once it completes.
func (s *Switch) Finish(ctx context.Context, op *Op) error {
	if op == nil || op.finished.Load() {
		return types.ErrBadState
	}
	limiter := rate.NewLimiter(rate.Every(s.pollInterval), 1)
	for i := 0; i < s.pollLimit; i++ {
		if s.Check(op) == StatusIdle {
			op.finished.Store(true)
			return op.err
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if s.Check(op) == StatusIdle {
		op.finished.Store(true)
		return op.err
	}
	s.logger.Warnf("hwengine: %s job exceeded %d polls", op.kind, s.pollLimit)
	return ErrTimedOut
}

// Discard abandons a job. The engine finishes the work in the background
// and its result is dropped.
func (s *Switch) Discard(op *Op) {
	if op != nil {
		op.finished.Store(true)
	}
}
