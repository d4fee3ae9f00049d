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

// Package metrics provides Prometheus instrumentation for the crypto
// operation engine: per step operation counts and latencies, error
// counters by class, live context counts and hardware engine occupancy.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all engine metrics
	Namespace = "keyengine"

	// Label names
	LabelClass     = "class"
	LabelStep      = "step"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
	LabelEngine    = "engine"
	LabelDomain    = "domain"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// OperationsTotal counts dispatched steps by class, step and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of engine steps by class, step and status",
		},
		[]string{LabelClass, LabelStep, LabelStatus},
	)

	// OperationDuration tracks step latency in seconds. Buckets cover
	// single block transforms up to RSA public operations.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of engine steps in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{LabelClass, LabelStep},
	)

	// ErrorsTotal counts failed operations by class and error type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of engine errors by class and error type",
		},
		[]string{LabelClass, LabelErrorType},
	)

	// ContextsActive tracks live contexts by origin domain.
	ContextsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "contexts_active",
			Help:      "Number of live operation contexts by domain",
		},
		[]string{LabelDomain},
	)

	// EngineBusy is 1 while a hardware engine is processing a job.
	EngineBusy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "engine_busy",
			Help:      "Indicates whether a hardware engine is busy (1) or idle (0)",
		},
		[]string{LabelEngine},
	)

	// ScratchBytesInUse tracks memory provider bytes currently allocated.
	ScratchBytesInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "scratch_bytes_in_use",
			Help:      "Bytes currently allocated from the key and memory provider",
		},
	)

	// Goroutines tracks the current number of goroutines.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records one dispatched step with its duration in seconds.
func RecordOperation(class, step, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(class, step, status).Inc()
	OperationDuration.WithLabelValues(class, step).Observe(duration)
}

// RecordError records a failed operation. errorType should be a short
// identifier such as "bad_state" or "signature_invalid".
func RecordError(class, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(class, errorType).Inc()
}

// IncrementContexts increments the live context count for a domain.
func IncrementContexts(domain string) {
	if !enabled.Load() {
		return
	}
	ContextsActive.WithLabelValues(domain).Inc()
}

// DecrementContexts decrements the live context count for a domain.
func DecrementContexts(domain string) {
	if !enabled.Load() {
		return
	}
	ContextsActive.WithLabelValues(domain).Dec()
}

// SetEngineBusy sets the occupancy of a hardware engine.
func SetEngineBusy(engine string, busy bool) {
	if !enabled.Load() {
		return
	}
	value := 0.0
	if busy {
		value = 1.0
	}
	EngineBusy.WithLabelValues(engine).Set(value)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
