package fiberflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 0, cfg.HTTPPort)
	assert.Equal(t, -1, cfg.NUMANode)
	assert.Equal(t, 1, cfg.Reactors)
	assert.Equal(t, 1, cfg.WorkersPerReactor)
	assert.Greater(t, cfg.ShutdownTimeout.Seconds(), 0.0)
}
