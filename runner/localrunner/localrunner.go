// File: runner/localrunner/localrunner.go
// Author: momentics <momentics@gmail.com>
//
// Package localrunner is a reference pipeline.Runner that reads
// newline-delimited records from local files, grounded on
// mr/local_runner.h's LocalRunner: ExpandGlob over the local filesystem,
// ProcessInputFile reading one file into a RecordQueue, and a
// CreateContext building one accumulator Context per reactor.

package localrunner

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/momentics/fiberflow/bchan"
	"github.com/momentics/fiberflow/control"
	"github.com/momentics/fiberflow/fibererr"
	"github.com/momentics/fiberflow/pipeline"
)

// DoFunc is the per-record handler a caller supplies; Runner invokes a
// fresh copy's worth of bookkeeping per reactor but the function itself
// is shared and must be safe to call concurrently from every reactor's
// mapper fiber.
type DoFunc func(record []byte)

// Runner is a pipeline.Runner over local newline-delimited files.
type Runner struct {
	dataDir string
	doFn    DoFunc
	logger  *control.Logger

	mu       sync.Mutex
	contexts []*accContext
	closed   atomic.Bool
}

// New builds a Runner rooted at dataDir (used to resolve relative glob
// patterns), invoking doFn for every record decoded from every file.
func New(dataDir string, doFn DoFunc, logger *control.Logger) *Runner {
	if logger == nil {
		logger = control.NopLogger()
	}
	return &Runner{dataDir: dataDir, doFn: doFn, logger: logger}
}

func (r *Runner) Init() error { return nil }

func (r *Runner) Shutdown() error {
	r.closed.Store(true)
	return nil
}

func (r *Runner) OperatorStart() error {
	r.logger.Infof("localrunner: operator starting in %s", r.dataDir)
	return nil
}

func (r *Runner) OperatorEnd() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, c := range r.contexts {
		total += c.count.Load()
	}
	r.logger.Infof("localrunner: operator ended, %d records accumulated", total)
	return nil
}

// ExpandGlob resolves pattern against the runner's data directory (if
// pattern is not already absolute) and returns every matching file.
func (r *Runner) ExpandGlob(pattern string) ([]string, error) {
	p := pattern
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.dataDir, p)
	}
	matches, err := filepath.Glob(p)
	if err != nil {
		return nil, fibererr.New(fibererr.KindIO, "localrunner.ExpandGlob", err)
	}
	return matches, nil
}

// ProcessFile reads filename line by line, pushing each non-empty line
// (with its trailing newline stripped) onto recordQ as one record. A line
// longer than 1 MiB, or a read error, stops the scan at that point and
// counts one parse error; records already pushed stay pushed and the rest
// of the file is not read.
func (r *Runner) ProcessFile(filename string, recordQ *bchan.BoundedChannel[[]byte]) (int, error) {
	f, err := os.Open(filename)
	if err != nil {
		return 0, fibererr.New(fibererr.KindIO, "localrunner.ProcessFile", err)
	}
	defer f.Close()

	parseErrors := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		rec := make([]byte, len(line))
		copy(rec, line)
		if err := recordQ.Push(rec); err != nil {
			// Queue closed out from under us (Executor.Stop); the file is
			// only partially processed, which mr/pipeline_executor.cc treats
			// as a normal early exit, not a parse error.
			return parseErrors, nil
		}
	}
	if err := sc.Err(); err != nil {
		parseErrors++
		r.logger.Warnf("localrunner: %s: %v", filename, err)
	}
	return parseErrors, nil
}

// CreateContext builds a fresh per-reactor accumulator Context that
// forwards every record to the Runner's shared doFn while counting how
// many records it has seen.
func (r *Runner) CreateContext() (pipeline.Context, error) {
	c := &accContext{doFn: r.doFn}
	r.mu.Lock()
	r.contexts = append(r.contexts, c)
	r.mu.Unlock()
	return c, nil
}

// TotalRecords sums the record counts from every context created so far.
func (r *Runner) TotalRecords() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, c := range r.contexts {
		total += c.count.Load()
	}
	return total
}

type accContext struct {
	doFn  DoFunc
	count atomic.Int64
}

func (c *accContext) DoFunc() func(record []byte) {
	return func(record []byte) {
		c.count.Add(1)
		if c.doFn != nil {
			c.doFn(record)
		}
	}
}

func (c *accContext) Flush() error { return nil }
