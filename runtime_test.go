package fiberflow

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/fiberflow/accept"
	"github.com/momentics/fiberflow/control"
)

func TestRuntimeAcceptsConnections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reactors = 2
	cfg.ShutdownTimeout = 50 * time.Millisecond

	rt, err := New(cfg, control.NopLogger(), control.NewMetrics())
	require.NoError(t, err)

	port, err := rt.Accept.AddListener(0, 16, accept.NewEchoFramer)
	require.NoError(t, err)
	rt.Accept.Run()

	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.NoError(t, rt.Shutdown(context.Background()))
}

func TestRuntimeServesMetricsAndDebugVars(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPPort = 18099
	cfg.ShutdownTimeout = 50 * time.Millisecond

	rt, err := New(cfg, control.NopLogger(), control.NewMetrics())
	require.NoError(t, err)
	rt.ServeMetrics()
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18099/debug/vars")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, rt.Shutdown(context.Background()))
}
