//go:build linux
// +build linux

// control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Platform-level probes alongside the runtime's own reactor/pool/accept
// probes: how many CPUs the reactor pool's affinity pinning has to work
// with.

package control

import (
	"runtime"
)

// RegisterPlatformProbes adds host-level debug probes to dp.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
}
