package accept

import (
	"encoding/binary"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/fiberflow/reactor"
	"github.com/momentics/fiberflow/rpool"
)

func newTestServer(t *testing.T) (*Server, *reactor.Reactor, *rpool.Pool) {
	t.Helper()
	acceptReactor, err := reactor.New(reactor.WithName("accept"))
	require.NoError(t, err)
	go acceptReactor.Drive()

	pool, err := rpool.New(2, func(i int) (*reactor.Reactor, error) {
		return reactor.New(reactor.WithName("worker"))
	})
	require.NoError(t, err)

	srv := New(acceptReactor, pool, DefaultConfig())
	t.Cleanup(func() {
		acceptReactor.Stop()
		_ = acceptReactor.Close()
		pool.Stop()
		_ = pool.Close()
	})
	return srv, acceptReactor, pool
}

func TestEchoFramerRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t)

	port, err := srv.AddListener(0, 16, NewEchoFramer)
	require.NoError(t, err)
	srv.Run()

	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)

	payload := []byte("hello accept server")
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	_, err = conn.Write(append(header, payload...))
	require.NoError(t, err)

	resp := make([]byte, 4+len(payload))
	_, err = readFullNet(conn, resp)
	require.NoError(t, err)
	require.Equal(t, header, resp[:4])
	require.Equal(t, payload, resp[4:])

	// The handler fiber is still blocked reading the next frame and the
	// client never closes; Stop(true) must shut down the connection's
	// socket itself to unblock it.
	srv.Stop(true)
	require.Equal(t, 0, srv.ActiveConnections())
	_ = conn.Close()
}

func TestStopUnblocksIdleConnections(t *testing.T) {
	srv, _, _ := newTestServer(t)

	port, err := srv.AddListener(0, 16, NewEchoFramer)
	require.NoError(t, err)
	srv.Run()

	const n = 16
	conns := make([]net.Conn, n)
	for i := range conns {
		conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
		require.NoError(t, err)
		conns[i] = conn
	}

	done := make(chan struct{})
	go func() {
		srv.Stop(true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop(true) never returned with idle connections outstanding")
	}
	require.Equal(t, 0, srv.ActiveConnections())

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func TestAddListenerAfterRunFails(t *testing.T) {
	srv, _, _ := newTestServer(t)
	_, err := srv.AddListener(0, 16, NewEchoFramer)
	require.NoError(t, err)
	srv.Run()

	_, err = srv.AddListener(0, 16, NewEchoFramer)
	require.Error(t, err)
}

func readFullNet(conn net.Conn, buf []byte) (int, error) {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		if err != nil {
			return read, err
		}
		read += n
	}
	return read, nil
}

