package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugProbesDumpState(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterProbe("answer", func() any { return 42 })
	dp.RegisterProbe("name", func() any { return "fiberflow" })

	state := dp.DumpState()
	assert.Equal(t, 42, state["answer"])
	assert.Equal(t, "fiberflow", state["name"])
}

func TestRegisterPlatformProbesAddsCPUCount(t *testing.T) {
	dp := NewDebugProbes()
	RegisterPlatformProbes(dp)

	state := dp.DumpState()
	cpus, ok := state["platform.cpus"].(int)
	assert.True(t, ok)
	assert.Greater(t, cpus, 0)
}
