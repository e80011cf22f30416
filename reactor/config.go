// File: reactor/config.go
// Author: momentics <momentics@gmail.com>
//
// Functional options for Reactor construction, mirroring the
// server.ServerOption pattern used elsewhere in this codebase.

package reactor

import "github.com/momentics/fiberflow/control"

// Config carries the construction-time parameters of a Reactor.
type Config struct {
	Kind      Kind
	RingDepth uint32 // uring only; rounded up by the driver if needed
	LinkedSQE bool   // uring only; chain poll+recv/send via IOSQE_IO_LINK
	Logger    *control.Logger
	Metrics   *control.Metrics
	Name      string
}

// DefaultConfig returns the general (epoll) flavour with a nop logger and
// an isolated metrics registry.
func DefaultConfig() Config {
	return Config{
		Kind:      KindGeneral,
		RingDepth: 4096,
		Logger:    control.NopLogger(),
		Metrics:   control.NewMetrics(),
		Name:      "reactor",
	}
}

// Option customizes a Config before it is handed to New.
type Option func(*Config)

func WithKind(k Kind) Option { return func(c *Config) { c.Kind = k } }
func WithRingDepth(depth uint32) Option {
	return func(c *Config) { c.RingDepth = depth }
}
func WithLinkedSQE(enabled bool) Option {
	return func(c *Config) { c.LinkedSQE = enabled }
}
func WithLogger(l *control.Logger) Option { return func(c *Config) { c.Logger = l } }
func WithMetrics(m *control.Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}
func WithName(name string) Option { return func(c *Config) { c.Name = name } }
