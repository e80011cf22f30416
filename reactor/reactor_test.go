package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestReactor(t *testing.T, name string) *Reactor {
	t.Helper()
	r, err := New(WithName(name))
	require.NoError(t, err)
	go r.Drive()
	t.Cleanup(func() {
		r.Stop()
		_ = r.Close()
	})
	return r
}

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReadAsyncRoundTrip(t *testing.T) {
	r := newTestReactor(t, "rw")
	a, b := socketpair(t)

	done := make(chan struct{})
	r.Spawn(func() {
		defer close(done)
		buf := make([]byte, 5)
		n, err := r.ReadAsync(uintptr(a), buf)
		require.NoError(t, err)
		require.Equal(t, 5, n)
		require.Equal(t, "hello", string(buf))
	})
	require.NoError(t, r.Notify())

	_, err := unix.Write(b, []byte("hello"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ReadAsync")
	}
}

func TestWriteAsyncRoundTrip(t *testing.T) {
	r := newTestReactor(t, "wr")
	a, b := socketpair(t)

	done := make(chan struct{})
	r.Spawn(func() {
		defer close(done)
		n, err := r.WriteAsync(uintptr(a), []byte("ping"))
		require.NoError(t, err)
		require.Equal(t, 4, n)
	})
	require.NoError(t, r.Notify())

	buf := make([]byte, 4)
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := unix.Read(b, buf)
		if err == nil && n == 4 {
			require.Equal(t, "ping", string(buf))
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for WriteAsync's bytes")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for WriteAsync to return")
	}
}

func TestSleepUntilWakesAfterDeadline(t *testing.T) {
	r := newTestReactor(t, "sleep")

	start := time.Now()
	done := make(chan time.Duration, 1)
	r.Spawn(func() {
		r.SleepUntil(time.Now().Add(30 * time.Millisecond))
		done <- time.Since(start)
	})
	require.NoError(t, r.Notify())

	select {
	case elapsed := <-done:
		require.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("SleepUntil never woke the fiber")
	}
}

func TestCurrentMatchesOwningReactor(t *testing.T) {
	r1 := newTestReactor(t, "r1")
	r2 := newTestReactor(t, "r2")

	results := make(chan bool, 2)
	r1.Spawn(func() {
		f := Current()
		results <- f != nil && f.Reactor() == r1
	})
	r2.Spawn(func() {
		f := Current()
		results <- f != nil && f.Reactor() == r2
	})
	require.NoError(t, r1.Notify())
	require.NoError(t, r2.Notify())

	for i := 0; i < 2; i++ {
		select {
		case ok := <-results:
			require.True(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("fiber never ran")
		}
	}
}

func TestAwaitOnCrossReactor(t *testing.T) {
	caller := newTestReactor(t, "caller")
	target := newTestReactor(t, "target")

	var ranOnTarget bool
	done := make(chan struct{})
	caller.Spawn(func() {
		defer close(done)
		caller.AwaitOn(target, func() {
			ranOnTarget = Current().Reactor() == target
		})
	})
	require.NoError(t, caller.Notify())

	select {
	case <-done:
		require.True(t, ranOnTarget)
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitOn never completed")
	}
}
