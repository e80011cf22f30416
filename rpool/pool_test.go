package rpool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fiberflow/fibererr"
	"github.com/momentics/fiberflow/reactor"
)

func newTestPool(t *testing.T, n int) *Pool {
	t.Helper()
	p, err := New(n, func(i int) (*reactor.Reactor, error) {
		return reactor.New(reactor.WithName("pool-test"))
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Stop()
		_ = p.Close()
	})
	return p
}

func TestNextRoundRobins(t *testing.T) {
	p := newTestPool(t, 3)
	seen := map[*reactor.Reactor]int{}
	for i := 0; i < 9; i++ {
		seen[p.Next()]++
	}
	assert.Len(t, seen, 3)
	for _, count := range seen {
		assert.Equal(t, 3, count)
	}
}

func TestAwaitOnAllRunsOnEveryReactor(t *testing.T) {
	p := newTestPool(t, 4)

	var count atomic.Int32
	err := p.AwaitOnAll(func(r *reactor.Reactor) {
		count.Add(1)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, count.Load())
}

func TestAwaitOnAllRejectsReentrantCall(t *testing.T) {
	p := newTestPool(t, 2)

	errCh := make(chan error, 1)
	p.All()[0].Spawn(func() {
		errCh <- p.AwaitOnAll(func(r *reactor.Reactor) {})
	})
	require.NoError(t, p.All()[0].Notify())

	err := <-errCh
	require.Error(t, err)
	assert.True(t, fibererr.Is(err, fibererr.KindInternal))
}
