package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli"
)

func main() {
	app := makeapp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func makeapp() *cli.App {
	app := cli.NewApp()
	app.Name = "spacecraft"
	app.Usage = "authoritative arena combat server"
	app.Description = "Players steer ships over line-delimited JSON; monitors watch the whole arena."

	serveFlags := []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "YAML config file", EnvVar: "SPACECRAFT_CONFIG"},
		cli.IntFlag{Name: "player-port", Usage: "TCP port for players"},
		cli.IntFlag{Name: "monitor-port", Usage: "TCP port for monitors"},
		cli.StringFlag{Name: "http", Usage: "HTTP address for WebSocket, metrics and match history"},
		cli.StringFlag{Name: "map, m", Usage: "map file (.yaml or .svg)"},
		cli.StringFlag{Name: "database", Usage: "SQLite file for match history"},
		cli.StringFlag{Name: "record", Usage: "write a replay of the match to this file"},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		cli.Int64Flag{Name: "seed", Usage: "random seed for spawn positions"},
	}

	app.Flags = serveFlags
	app.Action = serveAction
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the game server (default)",
			Flags:  serveFlags,
			Action: serveAction,
		},
		{
			Name:      "hash-password",
			Usage:     "Print a bcrypt hash for monitor_password_hash",
			ArgsUsage: "<password>",
			Action:    hashPasswordAction,
		},
		{
			Name:  "matches",
			Usage: "List recent match results",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "database", Value: "spacecraft.db", Usage: "SQLite file"},
				cli.IntFlag{Name: "limit", Value: 10, Usage: "number of matches"},
			},
			Action: matchesAction,
		},
		{
			Name:      "replay",
			Usage:     "Print a recording in monitor wire format",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "fps", Usage: "pace output at this frame rate (0 = as fast as possible)"},
			},
			Action: replayAction,
		},
	}
	return app
}

// newLogger builds the root logger. Components derive prefixed children.
func newLogger(level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	}), nil
}
