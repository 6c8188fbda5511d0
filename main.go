// Command ipfs-registry runs a signed, content-addressed package
// registry backed by Postgres metadata and mirrored blob storage.
package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/LavaMoat/ipfs-registry/commands"
)

var log = logging.Logger("registry")

func main() {
	app := &cli.App{
		Name:  "ipfs-registry",
		Usage: "Signed, content-addressed package registry",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Logging level: debug, info, warn, error.",
				EnvVars: []string{"GOLOG_LOG_LEVEL"},
				Value:   "info",
			},
		},
		Before: func(cctx *cli.Context) error {
			return logging.SetLogLevel("*", cctx.String("log-level"))
		},
		Commands: []*cli.Command{
			commands.ServerCmd,
			commands.MigrateCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}
