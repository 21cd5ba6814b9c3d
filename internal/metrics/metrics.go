package metrics

import (
	"os"
	"sync"
	"time"
)

// Package metrics provides a minimal instrumentation interface with a
// no-op default and an optional Prometheus-backed implementation enabled
// via env.

// Recorder defines the metrics surface used across the codebase.
type Recorder interface {
	IncStoreOpTotal(op string, success bool)
	ObserveStoreOpSeconds(op string, success bool, seconds float64)
	IncToolTotal(tool string, success bool)
	ObserveToolSeconds(tool string, success bool, seconds float64)
	AddMigratedEntities(count int)
	IncSearchFallback(reason string)
}

type noopRecorder struct{}

func (n *noopRecorder) IncStoreOpTotal(string, bool)                {}
func (n *noopRecorder) ObserveStoreOpSeconds(string, bool, float64) {}
func (n *noopRecorder) IncToolTotal(string, bool)                   {}
func (n *noopRecorder) ObserveToolSeconds(string, bool, float64)    {}
func (n *noopRecorder) AddMigratedEntities(int)                     {}
func (n *noopRecorder) IncSearchFallback(string)                    {}

var (
	recMu    sync.RWMutex
	recorder Recorder = &noopRecorder{}
)

// Default returns the current recorder.
func Default() Recorder {
	recMu.RLock()
	defer recMu.RUnlock()
	return recorder
}

// SetRecorder swaps the global recorder implementation.
func SetRecorder(r Recorder) {
	recMu.Lock()
	defer recMu.Unlock()
	recorder = r
}

// TimeOp is a helper to time store operations.
func TimeOp(op string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncStoreOpTotal(op, success)
		Default().ObserveStoreOpSeconds(op, success, dur)
	}
}

// TimeTool is a helper to time tool handler operations.
func TimeTool(tool string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncToolTotal(tool, success)
		Default().ObserveToolSeconds(tool, success, dur)
	}
}

// InitFromEnv enables the Prometheus exporter if METRICS_PROMETHEUS is
// set. It also starts a small HTTP server on METRICS_ADDR (default
// :9090) with endpoints /metrics and /healthz.
func InitFromEnv() {
	if os.Getenv("METRICS_PROMETHEUS") == "" {
		return
	}
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	_ = enablePrometheus(addr)
}
