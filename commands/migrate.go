package commands

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/LavaMoat/ipfs-registry/config"
	"github.com/LavaMoat/ipfs-registry/storage"
)

type migrateOps struct {
	configPath string
}

var migrateFlags migrateOps

var MigrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "Apply pending database schema patches",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to the TOML configuration file.",
			EnvVars:     []string{"IPFS_REGISTRY_CONFIG"},
			Value:       "registry.toml",
			Destination: &migrateFlags.configPath,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()

		cfg, err := config.Load(migrateFlags.configPath)
		if err != nil {
			return err
		}

		db, err := storage.NewDatabase(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()

		return db.MigrateSchema(ctx)
	},
}
