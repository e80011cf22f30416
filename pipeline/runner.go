// File: pipeline/runner.go
// Author: momentics <momentics@gmail.com>
//
// Runner is the external collaborator a Pipeline Executor drives:
// expanding glob patterns into concrete filenames, decoding one file at a
// time into records, and supplying a per-reactor processing context.
// Grounded on mr/local_runner.h's Init/Shutdown/OperatorStart/
// OperatorEnd/ExpandGlob/ProcessInputFile/CreateContext contract.

package pipeline

import "github.com/momentics/fiberflow/bchan"

// Context is created once per reactor (via Runner.CreateContext) and
// shared by every mapper fiber on that reactor; CreateContext must be
// safe to call concurrently from multiple reactors.
type Context interface {
	// DoFunc returns the per-record handler this context's mapper fiber
	// invokes for every record popped off its RecordQueue.
	DoFunc() func(record []byte)
	// Flush is called once, after the mapper fiber on this reactor has
	// stopped, to release any buffered output.
	Flush() error
}

// Runner is the user-supplied glue between a Pipeline Executor and a
// concrete file format / processing job.
type Runner interface {
	Init() error
	Shutdown() error
	OperatorStart() error
	OperatorEnd() error
	// ExpandGlob expands a glob pattern into concrete filenames.
	ExpandGlob(pattern string) ([]string, error)
	// ProcessFile decodes filename and pushes each decoded record into
	// recordQ, returning the number of parse errors encountered (0 on a
	// fully clean parse). It must be safe to call concurrently from
	// multiple worker fibers across different reactors.
	ProcessFile(filename string, recordQ *bchan.BoundedChannel[[]byte]) (parseErrors int, err error)
	// CreateContext builds a Context for one reactor. Called once per
	// reactor from within Executor.Run; must be safe to call concurrently.
	CreateContext() (Context, error)
}
