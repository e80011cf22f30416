// File: accept/accept.go
// Author: momentics <momentics@gmail.com>
//
// AcceptServer listens on zero or more ports, accepts connections on a
// dedicated reactor, and round-robins each accepted connection to a pool
// reactor where a user Connection fiber is spawned to serve it. Grounded
// on util/uring/accept_server.h/.cc: AddListener returns the bound port,
// Run spawns one accept fiber per listener, Stop/Wait coordinate shutdown
// across them.

package accept

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/fiberflow/control"
	"github.com/momentics/fiberflow/fibererr"
	"github.com/momentics/fiberflow/reactor"
	"github.com/momentics/fiberflow/rpool"
	"github.com/momentics/fiberflow/socket"
)

// Connection is the per-connection handler contract. HandleRequests runs
// as a fiber on the reactor the connection was dispatched to; it owns the
// underlying socket until it returns, at which point the server closes
// it.
type Connection interface {
	HandleRequests(r *reactor.Reactor, sock *socket.FiberSocket) error
}

// Factory builds a Connection for a freshly accepted socket. Implementing
// this as a factory (rather than a single shared Connection instance)
// lets each connection carry its own state, matching ListenerInterface's
// NewConnection hook.
type Factory func() Connection

// listenerEntry pairs a bound FiberSocket with the factory that builds
// handlers for connections it accepts.
type listenerEntry struct {
	sock    *socket.FiberSocket
	factory Factory
}

// Server is the accept server: one listener per AddListener call, one
// connection-handling fiber per accepted socket, dispatched round robin
// across a pool.
type Server struct {
	acceptReactor *reactor.Reactor
	pool          *rpool.Pool
	logger        *control.Logger
	metrics       *control.Metrics

	mu        sync.Mutex
	listeners []*listenerEntry
	conns     map[uint64]*trackedConn
	nextConn  uint64
	wasRun    bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type trackedConn struct {
	sock *socket.FiberSocket
}

// Config configures an accept Server.
type Config struct {
	Backlog int
	Logger  *control.Logger
	Metrics *control.Metrics
}

func DefaultConfig() Config {
	return Config{Backlog: 512, Logger: control.NopLogger(), Metrics: control.DefaultMetrics()}
}

// New constructs a Server that accepts on acceptReactor and dispatches
// accepted connections across pool.
func New(acceptReactor *reactor.Reactor, pool *rpool.Pool, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = control.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = control.DefaultMetrics()
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = 512
	}
	return &Server{
		acceptReactor: acceptReactor,
		pool:          pool,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		conns:         make(map[uint64]*trackedConn),
		stopCh:        make(chan struct{}),
	}
}

// AddListener binds a new listening socket on port (0 for an ephemeral
// port) and returns the concrete bound port. Must be called before Run;
// like the original, listeners is not safe to grow once accept fibers
// reference its entries.
func (s *Server) AddListener(port int, backlog int, factory Factory) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wasRun {
		return 0, fibererr.New(fibererr.KindInternal, "accept.AddListener", errAlreadyRunning)
	}
	if backlog <= 0 {
		backlog = 512
	}
	sock, bound, err := socket.Listen(s.acceptReactor, port, backlog)
	if err != nil {
		return 0, err
	}
	s.listeners = append(s.listeners, &listenerEntry{sock: sock, factory: factory})
	s.logger.Infof("accept: listening on port %d", bound)
	return bound, nil
}

// Run spawns one accept fiber per registered listener on the accept
// reactor. Non-blocking: returns once the fibers are spawned.
func (s *Server) Run() {
	s.mu.Lock()
	s.wasRun = true
	listeners := append([]*listenerEntry{}, s.listeners...)
	s.mu.Unlock()

	for _, le := range listeners {
		le := le
		s.wg.Add(1)
		s.acceptReactor.Spawn(func() {
			defer s.wg.Done()
			s.runAcceptLoop(le)
		})
	}
}

func (s *Server) runAcceptLoop(le *listenerEntry) {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		peer, err := le.sock.Accept()
		if err != nil {
			if !le.sock.IsOpen() {
				return
			}
			s.logger.Warnf("accept: %v", err)
			continue
		}
		s.dispatch(peer, le.factory)
	}
}

// dispatch hands peer to the next pool reactor round robin and spawns a
// connection-handling fiber there.
func (s *Server) dispatch(peer *socket.FiberSocket, factory Factory) {
	target := s.pool.Next()
	peer.Rebind(target)

	s.mu.Lock()
	id := s.nextConn
	s.nextConn++
	tc := &trackedConn{sock: peer}
	s.conns[id] = tc
	s.mu.Unlock()
	s.metrics.ActiveConnections.Inc()

	target.Spawn(func() {
		conn := factory()
		if err := conn.HandleRequests(target, peer); err != nil {
			s.logger.Warnf("accept: connection %d: %v", id, err)
		}
		peer.Close()
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		s.metrics.ActiveConnections.Dec()
	})
	_ = target.Notify()
}

// Stop signals every accept fiber to stop taking new connections (shutting
// down each listening socket so a parked Accept returns), waits for those
// fibers to return (so no connection can be dispatched after this point),
// closes the listeners, and then asks every live connection to shut down its
// socket, so a handler fiber blocked in sock.Read unblocks with EOF
// instead of waiting for the remote peer. When waitForConnections is
// true, Stop then blocks until every already-accepted connection's
// handler fiber has returned.
func (s *Server) Stop(waitForConnections bool) {
	close(s.stopCh)
	s.mu.Lock()
	for _, le := range s.listeners {
		// Closing an fd silently drops it from epoll; shutting it down
		// instead wakes the accept fiber parked on it.
		_ = le.sock.Shutdown(unix.SHUT_RDWR)
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.mu.Lock()
	for _, le := range s.listeners {
		le.sock.Close()
	}
	for _, tc := range s.conns {
		_ = tc.sock.Shutdown(unix.SHUT_RDWR)
	}
	s.mu.Unlock()

	if waitForConnections {
		for {
			s.mu.Lock()
			n := len(s.conns)
			s.mu.Unlock()
			if n == 0 {
				return
			}
			time.Sleep(time.Microsecond)
		}
	}
}

// ActiveConnections returns the number of connections currently tracked.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

var errAlreadyRunning = errors.New("accept: AddListener called after Run")
