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

package metrics

import (
	"context"
	"runtime"
	"time"
)

// ScratchSource reports the bytes currently allocated by a memory provider.
type ScratchSource interface {
	InUse() int
}

// ResourceCollector periodically samples goroutine count and memory
// provider usage.
type ResourceCollector struct {
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	scratch  ScratchSource
}

// NewResourceCollector creates a collector sampling at interval. scratch
// may be nil.
func NewResourceCollector(ctx context.Context, interval time.Duration, scratch ScratchSource) *ResourceCollector {
	collectorCtx, cancel := context.WithCancel(ctx)
	return &ResourceCollector{
		ctx:      collectorCtx,
		cancel:   cancel,
		interval: interval,
		scratch:  scratch,
	}
}

// Start samples until Stop is called or the parent context ends.
func (rc *ResourceCollector) Start() {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	rc.Collect()
	for {
		select {
		case <-rc.ctx.Done():
			return
		case <-ticker.C:
			rc.Collect()
		}
	}
}

// Stop halts the collector.
func (rc *ResourceCollector) Stop() {
	rc.cancel()
}

// Collect takes one sample.
func (rc *ResourceCollector) Collect() {
	if !IsEnabled() {
		return
	}
	Goroutines.Set(float64(runtime.NumGoroutine()))
	if rc.scratch != nil {
		ScratchBytesInUse.Set(float64(rc.scratch.InUse()))
	}
}

// StartResourceCollector creates a collector and runs it in a goroutine.
func StartResourceCollector(ctx context.Context, interval time.Duration, scratch ScratchSource) *ResourceCollector {
	collector := NewResourceCollector(ctx, interval, scratch)
	go collector.Start()
	return collector
}
