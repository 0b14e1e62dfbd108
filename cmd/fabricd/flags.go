// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	cli "gopkg.in/urfave/cli.v1"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to the yaml config file",
	}
	nodeIDFlag = cli.StringFlag{
		Name:  "node-id",
		Usage: "registry node identifier",
	}
	agentIDFlag = cli.StringFlag{
		Name:  "agent-id",
		Usage: "agent identifier advertised on the fabric",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Usage: "directory for databases (empty keeps everything in memory)",
	}
	keyFileFlag = cli.StringFlag{
		Name:  "key-file",
		Usage: "identity keystore file (created when missing)",
	}
	listenAddrFlag = cli.StringFlag{
		Name:  "listen-addr",
		Value: ":7671",
		Usage: "websocket transport listening address",
	}
	apiAddrFlag = cli.StringFlag{
		Name:  "api-addr",
		Value: "localhost:8669",
		Usage: "admin API listening address",
	}
	apiCorsFlag = cli.StringFlag{
		Name:  "api-cors",
		Usage: "comma separated list of domains allowed cross origin access",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: 2,
		Usage: "log verbosity (0=error, 1=warn, 2=info, 3=debug)",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:  "enable-metrics",
		Usage: "enable prometheus metrics on the admin API",
	}
)
