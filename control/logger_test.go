package control

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoggerWritesAtLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, zerolog.InfoLevel)

	l.Debugf("should not appear %d", 1)
	assert.Equal(t, 0, buf.Len())

	l.Infof("hello %s", "world")
	assert.Contains(t, buf.String(), "hello world")
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, zerolog.DebugLevel).With("reactor", "accept")

	l.Infof("started")
	assert.Contains(t, buf.String(), "\"reactor\":\"accept\"")
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	l := NopLogger()
	assert.NotPanics(t, func() {
		l.Debugf("x")
		l.Infof("x")
		l.Warnf("x")
		l.Errorf("x")
	})
}
