// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package log is a thin facade over log/slog shared by all fabric packages.
// Packages obtain a logger once at init time:
//
//	var logger = log.WithContext("pkg", "session")
package log

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// Logger is the leveled key-value logger handed out to packages.
type Logger struct {
	attrs []any
}

var root atomic.Pointer[slog.Logger]

func init() {
	root.Store(slog.New(NewTerminalHandler(os.Stderr, false)))
}

// SetDefault replaces the process-wide handler. Meant to be called once
// from the command layer before anything logs.
func SetDefault(h slog.Handler) {
	root.Store(slog.New(h))
}

// WithContext returns a logger that prefixes every record with the given
// key-value context.
func WithContext(kv ...any) *Logger {
	return &Logger{attrs: kv}
}

// New is an alias of WithContext kept for call sites that read better with it.
func New(kv ...any) *Logger {
	return WithContext(kv...)
}

func (l *Logger) log(level slog.Level, msg string, kv []any) {
	args := make([]any, 0, len(l.attrs)+len(kv))
	args = append(args, l.attrs...)
	args = append(args, kv...)
	root.Load().Log(nil, level, msg, args...)
}

func (l *Logger) Debug(msg string, kv ...any) { l.log(slog.LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.log(slog.LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.log(slog.LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.log(slog.LevelError, msg, kv) }

// With returns a child logger carrying extra context.
func (l *Logger) With(kv ...any) *Logger {
	attrs := make([]any, 0, len(l.attrs)+len(kv))
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, kv...)
	return &Logger{attrs: attrs}
}

// JSONHandler returns a handler emitting one JSON object per record.
func JSONHandler(wr io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(wr, &slog.HandlerOptions{Level: level})
}

// DiscardHandler drops every record. Used by tests.
func DiscardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)})
}
