// Package crlog is chancore's logging facade. It mirrors the teacher
// repo's libs/log package: a small Logger interface layered over
// go-kit/log, with level-aware Debug/Info/Error methods and a With that
// returns a derived logger carrying extra key/value context down into
// long-lived components (PortCtx, the registry, the control worker).
package crlog

import (
	"os"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Logger is the logging surface every chancore component is constructed
// with.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	With(keyvals ...interface{}) Logger
}

type kitLogger struct {
	l kitlog.Logger
}

// NewLogger returns a Logger that writes logfmt lines to os.Stderr.
func NewLogger() Logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	base = kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)
	return &kitLogger{l: base}
}

// NewNopLogger returns a Logger that discards everything, for tests and
// for components constructed without an explicit logger.
func NewNopLogger() Logger {
	return &kitLogger{l: kitlog.NewNopLogger()}
}

func (k *kitLogger) Debug(msg string, keyvals ...interface{}) {
	_ = level.Debug(k.l).Log(append([]interface{}{"msg", msg}, keyvals...)...)
}

func (k *kitLogger) Info(msg string, keyvals ...interface{}) {
	_ = level.Info(k.l).Log(append([]interface{}{"msg", msg}, keyvals...)...)
}

func (k *kitLogger) Error(msg string, keyvals ...interface{}) {
	_ = level.Error(k.l).Log(append([]interface{}{"msg", msg}, keyvals...)...)
}

func (k *kitLogger) With(keyvals ...interface{}) Logger {
	return &kitLogger{l: kitlog.With(k.l, keyvals...)}
}
