package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/fiberflow/reactor"
)

func newTestReactor(t *testing.T) *reactor.Reactor {
	t.Helper()
	r, err := reactor.New(reactor.WithName("socket-test"))
	require.NoError(t, err)
	go r.Drive()
	t.Cleanup(func() {
		r.Stop()
		_ = r.Close()
	})
	return r
}

func TestListenAcceptConnectRoundTrip(t *testing.T) {
	r := newTestReactor(t)

	listener, port, err := Listen(r, 0, 16)
	require.NoError(t, err)
	require.NotZero(t, port)
	t.Cleanup(func() { listener.Close() })

	serverDone := make(chan string, 1)
	r.Spawn(func() {
		peer, err := listener.Accept()
		if err != nil {
			serverDone <- "accept error: " + err.Error()
			return
		}
		defer peer.Close()
		buf := make([]byte, 5)
		n, err := peer.Read(buf)
		if err != nil {
			serverDone <- "read error: " + err.Error()
			return
		}
		serverDone <- string(buf[:n])
	})

	clientDone := make(chan error, 1)
	r.Spawn(func() {
		conn, err := Connect(r, [4]byte{127, 0, 0, 1}, port)
		if err != nil {
			clientDone <- err
			return
		}
		defer conn.Close()
		clientDone <- conn.WriteAll([]byte("hello"))
	})
	require.NoError(t, r.Notify())

	select {
	case err := <-clientDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client fiber never finished")
	}

	select {
	case got := <-serverDone:
		require.Equal(t, "hello", got)
	case <-time.After(2 * time.Second):
		t.Fatal("server fiber never finished")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := newTestReactor(t)
	listener, _, err := Listen(r, 0, 16)
	require.NoError(t, err)

	require.True(t, listener.IsOpen())
	require.NoError(t, listener.Close())
	require.False(t, listener.IsOpen())
	require.NoError(t, listener.Close())
}
