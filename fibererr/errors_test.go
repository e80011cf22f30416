package fibererr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := New(KindIO, "socket.Read", inner)

	require.Error(t, err)
	assert.Equal(t, KindIO, err.Kind)
	assert.Equal(t, "socket.Read", err.Op)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "socket.Read")
	assert.Contains(t, err.Error(), "boom")
}

func TestIs(t *testing.T) {
	err := New(KindProtocol, "accept.ReadFrame", errors.New("too long"))
	assert.True(t, Is(err, KindProtocol))
	assert.False(t, Is(err, KindIO))
	assert.False(t, Is(errors.New("plain"), KindProtocol))
}

func TestSentinels(t *testing.T) {
	assert.True(t, Is(ErrClosed, KindClosed))
	assert.True(t, Is(ErrCancelled, KindCancelled))
	assert.True(t, Is(ErrReentrantAwait, KindInternal))
	assert.True(t, Is(ErrResourceExhausted, KindResource))
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindIO:        "io",
		KindCancelled: "cancelled",
		KindClosed:    "closed",
		KindResource:  "resource",
		KindProtocol:  "protocol",
		KindInternal:  "internal",
	}
	for k, want := range cases {
		assert.Equal(t, want, k.String())
	}
}
