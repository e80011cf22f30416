package pipeline_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/fiberflow/pipeline"
	"github.com/momentics/fiberflow/reactor"
	"github.com/momentics/fiberflow/rpool"
	"github.com/momentics/fiberflow/runner/localrunner"
)

func newTestPool(t *testing.T, n int) *rpool.Pool {
	t.Helper()
	p, err := rpool.New(n, func(i int) (*reactor.Reactor, error) {
		return reactor.New(reactor.WithName("pipeline-test"))
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Stop()
		_ = p.Close()
	})
	return p
}

func writeLines(t *testing.T, dir, name string, n int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for i := 0; i < n; i++ {
		_, err := f.WriteString("record\n")
		require.NoError(t, err)
	}
	return path
}

func TestExecutorProcessesAllRecords(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, dir, "a.txt", 10)
	writeLines(t, dir, "b.txt", 10)

	var processed atomic.Int64
	r := localrunner.New(dir, func(record []byte) { processed.Add(1) }, nil)
	pool := newTestPool(t, 2)

	ex := pipeline.New(pool, r, pipeline.DefaultConfig())
	errCh := make(chan error, 1)
	go func() { errCh <- ex.Run([]string{"*.txt"}) }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Executor.Run never returned")
	}

	require.EqualValues(t, 20, processed.Load())
	require.EqualValues(t, 20, r.TotalRecords())
}

func TestExecutorMapLimitDropsPastLimit(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, dir, "records.txt", 50)

	var processed atomic.Int64
	r := localrunner.New(dir, func(record []byte) { processed.Add(1) }, nil)
	pool := newTestPool(t, 1)

	cfg := pipeline.DefaultConfig()
	cfg.MapLimit = 5
	ex := pipeline.New(pool, r, cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- ex.Run([]string{"*.txt"}) }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Executor.Run never returned")
	}

	require.EqualValues(t, 5, processed.Load())
}

func TestExecutorSurfacesFirstPanic(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, dir, "a.txt", 5)

	r := localrunner.New(dir, func(record []byte) { panic("boom") }, nil)
	pool := newTestPool(t, 1)

	ex := pipeline.New(pool, r, pipeline.DefaultConfig())
	errCh := make(chan error, 1)
	go func() { errCh <- ex.Run([]string{"*.txt"}) }()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Executor.Run never returned after a mapper panic")
	}
}
