// Package testlog provides a log handler for unit tests.
package testlog

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Testing is the subset of testing.TB the logger needs. Standard Go
// testing.T implements this, as do Go-like test frameworks.
type Testing interface {
	Logf(format string, args ...any)
	Helper()
}

type logger struct {
	t   Testing
	l   log.Logger
	mu  *sync.Mutex
	buf *bytes.Buffer
}

var _ log.Logger = (*logger)(nil)

// Logger returns a logger which logs to the unit test log of t.
func Logger(t Testing, level slog.Level) log.Logger {
	l := &logger{t: t, mu: new(sync.Mutex), buf: new(bytes.Buffer)}
	handler := log.NewTerminalHandlerWithLevel(l.buf, level, false)
	l.l = log.NewLogger(handler)
	return l
}

func (l *logger) Handler() slog.Handler { return l.l.Handler() }

func (l *logger) Trace(msg string, ctx ...any) {
	l.t.Helper()
	l.flush(func() { l.l.Trace(msg, ctx...) })
}
func (l *logger) Debug(msg string, ctx ...any) {
	l.t.Helper()
	l.flush(func() { l.l.Debug(msg, ctx...) })
}
func (l *logger) Info(msg string, ctx ...any) {
	l.t.Helper()
	l.flush(func() { l.l.Info(msg, ctx...) })
}
func (l *logger) Warn(msg string, ctx ...any) {
	l.t.Helper()
	l.flush(func() { l.l.Warn(msg, ctx...) })
}
func (l *logger) Error(msg string, ctx ...any) {
	l.t.Helper()
	l.flush(func() { l.l.Error(msg, ctx...) })
}
func (l *logger) Crit(msg string, ctx ...any) {
	l.t.Helper()
	l.flush(func() { l.l.Crit(msg, ctx...) })
}

func (l *logger) Log(level slog.Level, msg string, ctx ...any) {
	l.t.Helper()
	l.flush(func() { l.l.Log(level, msg, ctx...) })
}

func (l *logger) Write(level slog.Level, msg string, attrs ...any) {
	l.t.Helper()
	l.flush(func() { l.l.Write(level, msg, attrs...) })
}

func (l *logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.l.Enabled(ctx, level)
}

func (l *logger) New(ctx ...any) log.Logger {
	return &logger{t: l.t, l: l.l.New(ctx...), mu: l.mu, buf: l.buf}
}

func (l *logger) With(ctx ...any) log.Logger {
	return l.New(ctx...)
}

// flush runs the log call under the lock and replays any buffered output
// into the test log so line attribution stays with the caller.
func (l *logger) flush(fn func()) {
	l.t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
	scanner := bufio.NewScanner(l.buf)
	for scanner.Scan() {
		l.t.Logf("%s", strings.TrimRight(scanner.Text(), "\n"))
	}
	l.buf.Reset()
}
