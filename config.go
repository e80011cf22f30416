// File: config.go
// Author: momentics <momentics@gmail.com>
//
// Package fiberflow is the root package tying a Reactor Pool and an
// Accept Server together behind one Config (which also carries the
// pipeline knobs for a caller-built pipeline Executor), the way
// server/types.go's Config/DefaultConfig binds the old facade's
// listener/pool/control. No flag parser is wired here — populating
// Config from the command line is left to the caller.

package fiberflow

import "time"

// Config carries every knob named across the runtime: an accept server's
// listen ports, a pipeline's map_limit and fan-out, and the ambient
// NUMA/shutdown knobs.
type Config struct {
	// HTTPPort is the port a debug/metrics HTTP server binds to, 0 to
	// disable it.
	HTTPPort int
	// Port is the primary accept server listen port, 0 for an ephemeral
	// port.
	Port int
	// MapLimit caps the number of records a pipeline reactor's mapper
	// fiber will actually hand to the do-function; 0 means unlimited.
	MapLimit int
	// LinkedSQE enables IOSQE_IO_LINK chaining on the io_uring driver.
	LinkedSQE bool
	// Connect, if non-empty, is a "host:port" a client mode dials instead
	// of listening.
	Connect string
	// Count bounds how many client-mode round trips to perform, 0 for
	// unbounded.
	Count int
	// NumConnections is how many client-mode connections to open
	// concurrently.
	NumConnections int
	// NUMANode is a CPU/NUMA index carried for callers. Runtime does not
	// read it: rpool.New pins pool reactor i to CPU i whatever its value,
	// and -1 does not disable that pinning.
	NUMANode int
	// ShutdownTimeout bounds how long graceful shutdown waits for
	// in-flight connections/files to drain before giving up.
	ShutdownTimeout time.Duration
	// WorkersPerReactor is the number of pipeline worker fibers spawned
	// per reactor.
	WorkersPerReactor int
	// Reactors is the pool size: how many reactors to drive, one per OS
	// thread.
	Reactors int
}

// DefaultConfig returns the same defaults the old server facade shipped
// (server/types.go's DefaultConfig), reinterpreted for this runtime.
func DefaultConfig() Config {
	return Config{
		HTTPPort:          0,
		Port:              9000,
		MapLimit:          0,
		LinkedSQE:         false,
		NumConnections:    1,
		NUMANode:          -1,
		ShutdownTimeout:   30 * time.Second,
		WorkersPerReactor: 1,
		Reactors:          1,
	}
}
