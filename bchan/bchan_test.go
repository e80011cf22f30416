package bchan

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fiberflow/fibererr"
)

// These tests exercise BoundedChannel from plain goroutines (no fiber
// owns the calling goroutine), so Push/Pop fall back to the busy-poll
// wait path rather than Fiber.Suspend.

func TestPushPopFIFO(t *testing.T) {
	c := New[int](4)
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Push(i))
	}
	for i := 0; i < 4; i++ {
		v, ok := c.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestPushBlocksUntilRoom(t *testing.T) {
	c := New[int](1)
	require.NoError(t, c.Push(1))

	done := make(chan struct{})
	go func() {
		require.NoError(t, c.Push(2))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Push should have blocked while the channel was full")
	case <-time.After(20 * time.Millisecond):
	}

	v, ok := c.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after Pop made room")
	}
}

func TestClosePopReturnsFalse(t *testing.T) {
	c := New[string](2)
	require.NoError(t, c.Push("a"))
	c.Close()

	v, ok := c.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = c.Pop()
	assert.False(t, ok)

	err := c.Push("b")
	assert.ErrorIs(t, err, fibererr.ErrClosed)
}

func TestStartClosingDrainsBuffered(t *testing.T) {
	c := New[int](4)
	require.NoError(t, c.Push(1))
	require.NoError(t, c.Push(2))
	c.StartClosing()

	assert.ErrorIs(t, c.Push(3), fibererr.ErrClosed)

	v, ok := c.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = c.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = c.Pop()
	assert.False(t, ok)
}

func TestConcurrentProducersConsumers(t *testing.T) {
	c := New[int](8)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			require.NoError(t, c.Push(i))
		}
		c.StartClosing()
	}()

	seen := 0
	for {
		_, ok := c.Pop()
		if !ok {
			break
		}
		seen++
	}
	wg.Wait()
	assert.Equal(t, n, seen)
}

