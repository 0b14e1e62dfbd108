// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"log/slog"
	"os"

	isatty "github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/a2afabric/fabric/log"
)

func initLogger(ctx *cli.Context) {
	var level slog.Level
	switch ctx.Int(verbosityFlag.Name) {
	case 0:
		level = slog.LevelError
	case 1:
		level = slog.LevelWarn
	case 2:
		level = slog.LevelInfo
	default:
		level = slog.LevelDebug
	}

	useColor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	handler := log.NewTerminalHandler(os.Stderr, useColor)
	handler.SetLevel(level)
	log.SetDefault(handler)
}
