// File: pipeline/executor.go
// Author: momentics <momentics@gmail.com>
//
// Executor fans file names out across a reactor pool, decodes them into
// records on per-reactor worker fibers, and feeds a per-reactor mapper
// fiber that invokes the Runner's do-function. Grounded tightly on
// mr/pipeline_executor.cc's PerIoStruct/ProcessFiles/MapFiber/Run/Stop:
// the file-name queue has capacity 16, each reactor's record queue has
// capacity 256, shutdown joins workers before StartClosing the record
// queue (workers must finish pushing before the queue can report
// closed), then joins the mapper, then flushes the context.

package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/fiberflow/bchan"
	"github.com/momentics/fiberflow/control"
	"github.com/momentics/fiberflow/fibererr"
	"github.com/momentics/fiberflow/reactor"
	"github.com/momentics/fiberflow/rpool"
)

// Config controls the executor's fan-out and the map_limit edge case.
type Config struct {
	WorkersPerReactor int
	// MapLimit, if > 0, caps the number of records actually handed to
	// the do-function per reactor; records past the limit are still
	// counted (and the file-name/record queues still drain normally),
	// just dropped before reaching the do-function.
	MapLimit int
	Logger   *control.Logger
	Metrics  *control.Metrics
}

func DefaultConfig() Config {
	return Config{
		WorkersPerReactor: 1,
		Logger:            control.NopLogger(),
		Metrics:           control.DefaultMetrics(),
	}
}

type perIO struct {
	recordQ    *bchan.BoundedChannel[[]byte]
	doContext  Context
	stopEarly  atomic.Bool
	workerDone *bchan.BoundedChannel[struct{}]
	mapperDone *bchan.BoundedChannel[struct{}]
}

// Executor runs one pipeline across a reactor pool.
type Executor struct {
	pool   *rpool.Pool
	runner Runner
	cfg    Config

	mu          sync.Mutex
	fileNameQ   *bchan.BoundedChannel[string]
	perIO       map[*reactor.Reactor]*perIO
	parseErrors atomic.Int64
	panicErr    error
}

// capturePanic latches the first panic recovered from a worker or mapper
// fiber, matching the original's "first panic surfaces as the run's
// result while the rest still shuts down" contract. Later panics are
// logged but do not replace the latched one.
func (e *Executor) capturePanic(p any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.panicErr == nil {
		e.panicErr = fibererr.New(fibererr.KindInternal, "pipeline: fiber panic", fmt.Errorf("%v", p))
	}
}

func (e *Executor) firstPanic() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.panicErr
}

// New builds an Executor bound to pool, driven by runner.
func New(pool *rpool.Pool, runner Runner, cfg Config) *Executor {
	if cfg.WorkersPerReactor <= 0 {
		cfg.WorkersPerReactor = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = control.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = control.DefaultMetrics()
	}
	return &Executor{pool: pool, runner: runner, cfg: cfg}
}

// Run expands each of inputs (a glob pattern) into concrete filenames,
// processes every file on a pool reactor's worker fibers, maps every
// decoded record through the Runner's do-function, and blocks until the
// whole pipeline has drained. It returns the first hard error
// encountered setting up or tearing down the run; per-file parse errors
// are counted and logged, not returned. If any worker or mapper fiber
// panics, the first such panic is latched and returned as Run's result
// once every reactor has finished shutting down.
func (e *Executor) Run(inputs []string) error {
	if err := e.runner.Init(); err != nil {
		return err
	}
	if err := e.runner.OperatorStart(); err != nil {
		return err
	}

	e.mu.Lock()
	e.fileNameQ = bchan.New[string](16)
	e.perIO = make(map[*reactor.Reactor]*perIO)
	e.mu.Unlock()

	if err := e.pool.AwaitOnAll(e.setupReactor); err != nil {
		return err
	}

inputLoop:
	for _, pattern := range inputs {
		files, err := e.runner.ExpandGlob(pattern)
		if err != nil {
			e.cfg.Logger.Warnf("pipeline: expand glob %q: %v", pattern, err)
			continue
		}
		e.cfg.Logger.Infof("pipeline: running on input %q with %d files", pattern, len(files))
		for _, f := range files {
			if err := e.fileNameQ.Push(f); err != nil {
				break inputLoop
			}
		}
	}
	e.fileNameQ.Close()

	e.pool.AwaitOnAll(e.shutdownReactor)

	if pe := e.parseErrors.Load(); pe > 0 {
		e.cfg.Logger.Warnf("pipeline: %d parse errors across run", pe)
	}

	e.mu.Lock()
	e.perIO = nil
	e.mu.Unlock()

	endErr := e.runner.OperatorEnd()
	if err := e.runner.Shutdown(); err != nil {
		e.cfg.Logger.Errorf("pipeline: runner shutdown: %v", err)
	}

	if p := e.firstPanic(); p != nil {
		return p
	}
	return endErr
}

func (e *Executor) setupReactor(r *reactor.Reactor) {
	ctx, err := e.runner.CreateContext()
	if err != nil {
		e.cfg.Logger.Errorf("pipeline: create context on %s: %v", r.Name(), err)
		return
	}
	pio := &perIO{
		recordQ:    bchan.New[[]byte](256),
		doContext:  ctx,
		workerDone: bchan.New[struct{}](e.cfg.WorkersPerReactor),
		mapperDone: bchan.New[struct{}](1),
	}
	e.mu.Lock()
	e.perIO[r] = pio
	e.mu.Unlock()

	for i := 0; i < e.cfg.WorkersPerReactor; i++ {
		r.Spawn(func() { e.processFiles(pio) })
	}
	r.Spawn(func() { e.mapFiber(pio) })
}

func (e *Executor) shutdownReactor(r *reactor.Reactor) {
	e.mu.Lock()
	pio := e.perIO[r]
	e.mu.Unlock()
	if pio == nil {
		return
	}
	for i := 0; i < e.cfg.WorkersPerReactor; i++ {
		pio.workerDone.Pop()
	}
	// StartClosing must follow the worker joins: workers must finish
	// pushing every decoded record before the record queue is allowed to
	// report itself closed to the mapper fiber.
	pio.recordQ.StartClosing()
	pio.mapperDone.Pop()
	if err := pio.doContext.Flush(); err != nil {
		e.cfg.Logger.Errorf("pipeline: flush on %s: %v", r.Name(), err)
	}
}

// processFiles pops filenames and decodes them onto pio.recordQ until the
// file-name queue drains or stopEarly is set. A panic from ProcessFile is
// latched as the run's first panic and then re-raised, so the fiber still
// terminates the way reactor.Spawn's own recover expects while the run's
// caller learns about it.
func (e *Executor) processFiles(pio *perIO) {
	defer pio.workerDone.Push(struct{}{})
	defer func() {
		if p := recover(); p != nil {
			e.capturePanic(p)
			panic(p)
		}
	}()
	for {
		if pio.stopEarly.Load() {
			return
		}
		name, ok := e.fileNameQ.Pop()
		if !ok {
			return
		}
		errs, err := e.runner.ProcessFile(name, pio.recordQ)
		if err != nil {
			e.cfg.Logger.Warnf("pipeline: process %q: %v", name, err)
		}
		if errs > 0 {
			e.parseErrors.Add(int64(errs))
			e.cfg.Metrics.ParseErrorsTotal.Add(float64(errs))
		}
	}
}

// mapFiber pops records off pio.recordQ and invokes the context's
// do-function until the queue drains. Like processFiles, a panic from
// doFn is latched as the run's first panic and re-raised.
func (e *Executor) mapFiber(pio *perIO) {
	defer pio.mapperDone.Push(struct{}{})
	defer func() {
		if p := recover(); p != nil {
			e.capturePanic(p)
			panic(p)
		}
	}()
	doFn := pio.doContext.DoFunc()
	recordNum := 0
	for {
		rec, ok := pio.recordQ.Pop()
		if !ok {
			return
		}
		recordNum++
		if e.cfg.MapLimit > 0 && recordNum > e.cfg.MapLimit {
			e.cfg.Metrics.RecordsDropped.Inc()
		} else {
			doFn(rec)
			e.cfg.Metrics.RecordsProcessed.Inc()
		}
		if recordNum%1000 == 0 {
			if f := reactor.Current(); f != nil {
				f.Yield()
			}
		}
	}
}

// Stop closes the file-name queue (so worker fibers drain and exit) and
// marks every reactor's per-IO state stop_early, matching the original's
// "close file_name_q then flip stop_early on every reactor" sequencing.
// It does not block; Run's own AwaitOnAll shutdown pass performs the
// actual join.
func (e *Executor) Stop() {
	e.mu.Lock()
	fq := e.fileNameQ
	perIO := e.perIO
	e.mu.Unlock()
	if fq != nil {
		fq.Close()
	}
	if perIO == nil {
		return
	}
	e.pool.AwaitOnAllAsync(func(r *reactor.Reactor) {
		e.mu.Lock()
		pio := perIO[r]
		e.mu.Unlock()
		if pio != nil {
			pio.stopEarly.Store(true)
		}
	})
}

// ParseErrors returns the lifetime count of parse errors seen this run.
func (e *Executor) ParseErrors() int64 { return e.parseErrors.Load() }
