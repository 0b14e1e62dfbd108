// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// TerminalHandler formats records for humans:
//
//	[LEVEL] [Jan 02 15:04:05] message key=value key=value
type TerminalHandler struct {
	mu       sync.Mutex
	wr       io.Writer
	lvl      *slog.LevelVar
	useColor bool
	attrs    []slog.Attr
}

// NewTerminalHandler creates a terminal handler writing to wr.
func NewTerminalHandler(wr io.Writer, useColor bool) *TerminalHandler {
	var lvl slog.LevelVar
	lvl.Set(slog.LevelInfo)
	return &TerminalHandler{wr: wr, lvl: &lvl, useColor: useColor}
}

// SetLevel adjusts the minimum level emitted.
func (h *TerminalHandler) SetLevel(l slog.Level) { h.lvl.Set(l) }

func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lvl.Level()
}

func (h *TerminalHandler) WithGroup(_ string) slog.Handler { return h }

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TerminalHandler{
		wr:       h.wr,
		lvl:      h.lvl,
		useColor: h.useColor,
		attrs:    append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
	}
}

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorGreen  = "\x1b[32m"
	colorCyan   = "\x1b[36m"
)

func (h *TerminalHandler) levelTag(l slog.Level) string {
	tag, color := "INFO", colorGreen
	switch {
	case l >= slog.LevelError:
		tag, color = "ERROR", colorRed
	case l >= slog.LevelWarn:
		tag, color = "WARN", colorYellow
	case l < slog.LevelInfo:
		tag, color = "DEBUG", colorCyan
	}
	if h.useColor {
		return color + tag + colorReset
	}
	return tag
}

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := make([]byte, 0, 128)
	buf = fmt.Appendf(buf, "[%s] [%s] %s", h.levelTag(r.Level), r.Time.Format(time.StampMilli), r.Message)
	for _, a := range h.attrs {
		buf = fmt.Appendf(buf, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = fmt.Appendf(buf, " %s=%v", a.Key, a.Value)
		return true
	})
	buf = append(buf, '\n')
	_, err := h.wr.Write(buf)
	return err
}
