// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Probe registry backing the runtime's /debug/vars endpoint. Runtime.New
// registers one probe per moving part it owns ("pool.size",
// "accept.active_connections", "reactor.<name>.ready" per worker
// reactor); DumpState snapshots all of them for the debug handler.

package control

import "sync"

// DebugProbes holds registered probe functions, keyed by a dotted name
// (e.g. "pool.size", "reactor.worker-0.ready").
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook. fn is called fresh on every
// DumpState, so it should be cheap (a size/counter read, not a scan).
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState evaluates every registered probe and returns the snapshot,
// keyed by probe name; this is what /debug/vars serialises as JSON.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any)
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}
