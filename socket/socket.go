// File: socket/socket.go
// Author: momentics <momentics@gmail.com>
//
// FiberSocket is a non-blocking socket bound to one reactor whose
// Read/Write/Accept/Connect suspend the calling fiber until the bound
// reactor reports completion. Grounded on
// util/uring/fiber_socket.h's Listen/Accept/Connect/Shutdown/Close
// contract, translated from boost::system::error_code returns to Go
// error returns.

package socket

import (
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/momentics/fiberflow/fibererr"
	"github.com/momentics/fiberflow/reactor"
)

// FiberSocket wraps a non-blocking fd bound to a single reactor.
type FiberSocket struct {
	mu     sync.Mutex
	fd     int
	closed bool
	r      *reactor.Reactor
}

// New wraps an already-created non-blocking fd, bound to r.
func New(r *reactor.Reactor, fd int) *FiberSocket {
	return &FiberSocket{fd: fd, r: r}
}

// Listen creates a TCP listening socket bound to r and returns it along
// with the concrete port bound (useful when port 0 requests an ephemeral
// port, matching AcceptServer::AddListener's returned-port contract).
func Listen(r *reactor.Reactor, port int, backlog int) (*FiberSocket, int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, 0, fibererr.New(fibererr.KindResource, "socket.Listen", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, 0, fibererr.New(fibererr.KindResource, "socket.Listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, 0, fibererr.New(fibererr.KindResource, "socket.Listen", err)
	}
	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, 0, fibererr.New(fibererr.KindResource, "socket.Listen", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, 0, fibererr.New(fibererr.KindResource, "socket.Listen", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, 0, fibererr.New(fibererr.KindResource, "socket.Listen", err)
	}
	boundPort := 0
	if in4, ok := bound.(*unix.SockaddrInet4); ok {
		boundPort = in4.Port
	}
	return New(r, fd), boundPort, nil
}

// Accept suspends the calling fiber until a peer connects, returning a
// new FiberSocket bound to the same reactor as the listener. Callers that
// want round-robin dispatch to a different reactor (package accept) move
// the returned fd to the target reactor explicitly.
func (s *FiberSocket) Accept() (*FiberSocket, error) {
	for {
		fd, err := s.r.AcceptAsync(uintptr(s.fd))
		if err == nil {
			unix.SetNonblock(fd, true)
			return New(s.r, fd), nil
		}
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		return nil, fibererr.New(fibererr.KindIO, "socket.Accept", err)
	}
}

// Connect suspends the calling fiber until a non-blocking connect to
// addr:port completes (or fails).
func Connect(r *reactor.Reactor, addr [4]byte, port int) (*FiberSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fibererr.New(fibererr.KindResource, "socket.Connect", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fibererr.New(fibererr.KindResource, "socket.Connect", err)
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: addr}
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fibererr.New(fibererr.KindIO, "socket.Connect", err)
	}
	s := New(r, fd)
	if err == unix.EINPROGRESS {
		if _, werr := r.WriteAsync(uintptr(fd), nil); werr != nil {
			s.Close()
			return nil, fibererr.New(fibererr.KindIO, "socket.Connect", werr)
		}
		soErr, serr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if serr != nil {
			s.Close()
			return nil, fibererr.New(fibererr.KindIO, "socket.Connect", serr)
		}
		if soErr != 0 {
			s.Close()
			return nil, fibererr.New(fibererr.KindIO, "socket.Connect", syscall.Errno(soErr))
		}
	}
	return s, nil
}

// Read suspends the calling fiber until at least one byte is available
// (or EOF/error), then returns it directly in buf.
func (s *FiberSocket) Read(buf []byte) (int, error) {
	n, err := s.r.ReadAsync(uintptr(s.fd), buf)
	if err != nil {
		return n, fibererr.New(fibererr.KindIO, "socket.Read", err)
	}
	return n, nil
}

// Write suspends the calling fiber until buf (or a prefix of it, per a
// single syscall) has been written.
func (s *FiberSocket) Write(buf []byte) (int, error) {
	n, err := s.r.WriteAsync(uintptr(s.fd), buf)
	if err != nil {
		return n, fibererr.New(fibererr.KindIO, "socket.Write", err)
	}
	return n, nil
}

// WriteAll loops Write until all of buf has been sent or an error occurs.
func (s *FiberSocket) WriteAll(buf []byte) error {
	for len(buf) > 0 {
		n, err := s.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// Shutdown half-closes the socket (how is unix.SHUT_RD/WR/RDWR).
func (s *FiberSocket) Shutdown(how int) error {
	return unix.Shutdown(s.fd, how)
}

// Close releases the underlying fd. Safe to call more than once.
func (s *FiberSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}

// IsOpen reports whether Close has not yet been called.
func (s *FiberSocket) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Fd returns the underlying native file descriptor. Ownership remains
// with the FiberSocket; callers must not close it directly.
func (s *FiberSocket) Fd() int { return s.fd }

// Reactor returns the reactor this socket is bound to.
func (s *FiberSocket) Reactor() *reactor.Reactor { return s.r }

// Rebind moves the socket's reactor affinity, used by the accept server
// when handing a freshly accepted connection to a pool reactor chosen by
// round robin rather than the one that performed the accept.
func (s *FiberSocket) Rebind(r *reactor.Reactor) {
	s.r = r
}
