// control/logger.go
// Author: momentics <momentics@gmail.com>
//
// Structured logging built on zerolog. Every reactor, accept server, and
// pipeline run logs through a Logger instead of fmt/log so that log lines
// carry component and reactor-id fields consistently.

package control

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the handful of calls the runtime
// needs, mirroring the Printf/Debugf/Infof/Warnf/Errorf shape used
// elsewhere in this codebase.
type Logger struct {
	z zerolog.Logger
}

// NewLogger builds a Logger writing to w at level. A nil w defaults to
// os.Stderr.
func NewLogger(w io.Writer, level zerolog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	z := zerolog.New(w).With().Timestamp().Logger().Level(level)
	return &Logger{z: z}
}

// NopLogger discards everything written to it.
func NopLogger() *Logger {
	return &Logger{z: zerolog.Nop()}
}

// With returns a child Logger with an additional string field, e.g. a
// reactor id or component name.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{z: l.z.With().Str(key, value).Logger()}
}

func (l *Logger) Debugf(format string, v ...any) { l.z.Debug().Msgf(format, v...) }
func (l *Logger) Infof(format string, v ...any)  { l.z.Info().Msgf(format, v...) }
func (l *Logger) Warnf(format string, v ...any)  { l.z.Warn().Msgf(format, v...) }
func (l *Logger) Errorf(format string, v ...any) { l.z.Error().Msgf(format, v...) }
