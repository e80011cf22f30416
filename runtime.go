// File: runtime.go
// Author: momentics <momentics@gmail.com>
//
// Runtime wires a reactor Pool and an accept Server behind one Config (it
// does not create a pipeline Executor), and exposes the shared Metrics
// registry over HTTP the way a production deployment of this runtime
// would, grounded on server/run.go's Run/Shutdown shape (affinity pin,
// background accept loop, context-bounded graceful teardown) but built
// on this repo's own reactor/accept/rpool packages instead of the old
// api.Poller/api.Listener facade.

package fiberflow

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/fiberflow/accept"
	"github.com/momentics/fiberflow/control"
	"github.com/momentics/fiberflow/reactor"
	"github.com/momentics/fiberflow/rpool"
)

// Runtime owns a reactor pool, a dedicated accept reactor/server, and the
// metrics/logging handles shared across both.
type Runtime struct {
	cfg     Config
	Logger  *control.Logger
	Metrics *control.Metrics
	Probes  *control.DebugProbes

	acceptReactor *reactor.Reactor
	Pool          *rpool.Pool
	Accept        *accept.Server

	httpSrv *http.Server
}

// New builds a Runtime from cfg: one dedicated accept reactor, a pool of
// cfg.Reactors worker reactors, and an accept.Server bound to both. It
// does not start accepting connections; call AddListener then Run.
func New(cfg Config, logger *control.Logger, metrics *control.Metrics) (*Runtime, error) {
	if logger == nil {
		logger = control.NopLogger()
	}
	if metrics == nil {
		metrics = control.DefaultMetrics()
	}
	if cfg.Reactors <= 0 {
		cfg.Reactors = 1
	}

	acceptReactor, err := reactor.New(
		reactor.WithName("accept"),
		reactor.WithLogger(logger),
		reactor.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	pool, err := rpool.New(cfg.Reactors, func(i int) (*reactor.Reactor, error) {
		return reactor.New(
			reactor.WithName(workerReactorName(i)),
			reactor.WithLogger(logger),
			reactor.WithMetrics(metrics),
		)
	})
	if err != nil {
		return nil, err
	}

	go func() {
		acceptReactor.Drive()
	}()

	acceptSrv := accept.New(acceptReactor, pool, accept.Config{
		Logger:  logger,
		Metrics: metrics,
	})

	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)
	probes.RegisterProbe("pool.size", func() any { return pool.Size() })
	probes.RegisterProbe("accept.active_connections", func() any { return acceptSrv.ActiveConnections() })
	for i, r := range pool.All() {
		r := r
		probes.RegisterProbe("reactor."+workerReactorName(i)+".ready", func() any { return r.HasReady() })
	}

	return &Runtime{
		cfg:           cfg,
		Logger:        logger,
		Metrics:       metrics,
		Probes:        probes,
		acceptReactor: acceptReactor,
		Pool:          pool,
		Accept:        acceptSrv,
	}, nil
}

func workerReactorName(i int) string {
	return "worker-" + strconv.Itoa(i)
}

// ServeMetrics starts an HTTP server on cfg.HTTPPort exposing this
// Runtime's Metrics registry at /metrics, matching the ambient-stack
// expectation that the process exposes Prometheus scrape output. A port
// of 0 disables it.
func (rt *Runtime) ServeMetrics() {
	if rt.cfg.HTTPPort <= 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.Metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/vars", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rt.Probes.DumpState())
	})
	rt.httpSrv = &http.Server{Addr: addrFor(rt.cfg.HTTPPort), Handler: mux}
	go func() {
		if err := rt.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rt.Logger.Errorf("runtime: metrics server: %v", err)
		}
	}()
}

func addrFor(port int) string {
	return ":" + strconv.Itoa(port)
}

// Shutdown stops the accept server (draining connections within
// cfg.ShutdownTimeout), stops and closes the reactor pool, and shuts down
// the metrics HTTP server if it was started.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, rt.cfg.ShutdownTimeout)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		rt.Accept.Stop(true)
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		rt.Logger.Warnf("runtime: connections still open after %v", rt.cfg.ShutdownTimeout)
	}
	rt.acceptReactor.Stop()
	rt.Pool.Stop()

	if rt.httpSrv != nil {
		_ = rt.httpSrv.Shutdown(shutdownCtx)
	}
	if err := rt.Pool.Close(); err != nil {
		rt.Logger.Errorf("runtime: pool close: %v", err)
	}
	return rt.acceptReactor.Close()
}
