// Package commands wires the CLI: the registry server and database
// migration entry points.
package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/api"
	"github.com/LavaMoat/ipfs-registry/archive"
	"github.com/LavaMoat/ipfs-registry/config"
	"github.com/LavaMoat/ipfs-registry/layer"
	"github.com/LavaMoat/ipfs-registry/metrics"
	"github.com/LavaMoat/ipfs-registry/registry"
	"github.com/LavaMoat/ipfs-registry/storage"
	"github.com/LavaMoat/ipfs-registry/webhooks"
)

var log = logging.Logger("registry/commands")

type serverOps struct {
	configPath string
	listenAddr string
}

var serverFlags serverOps

var ServerCmd = &cli.Command{
	Name:  "server",
	Usage: "Launch the registry server",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to the TOML configuration file.",
			EnvVars:     []string{"IPFS_REGISTRY_CONFIG"},
			Value:       "registry.toml",
			Destination: &serverFlags.configPath,
		},
		&cli.StringFlag{
			Name:        "listen",
			Usage:       "Address the HTTP server binds to.",
			EnvVars:     []string{"IPFS_REGISTRY_LISTEN"},
			Value:       ":9060",
			Destination: &serverFlags.listenAddr,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(serverFlags.configPath)
		if err != nil {
			return err
		}

		if err := metrics.RegisterViews(); err != nil {
			return xerrors.Errorf("registering metric views: %w", err)
		}

		svc, db, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		server := &http.Server{
			Addr:    serverFlags.listenAddr,
			Handler: api.NewServer(svc, cfg.CORS.Origins).Handler(),
		}

		errs := make(chan error, 1)
		go func() {
			log.Infow("listening", "addr", serverFlags.listenAddr, "tls", cfg.TLS.Cert != "")
			if cfg.TLS.Cert != "" {
				errs <- server.ListenAndServeTLS(cfg.TLS.Cert, cfg.TLS.Key)
			} else {
				errs <- server.ListenAndServe()
			}
		}()

		select {
		case <-ctx.Done():
			log.Infow("shutting down")
			return server.Shutdown(context.Background())
		case err := <-errs:
			return err
		}
	},
}

func buildService(ctx context.Context, cfg *config.Config) (*registry.Service, *storage.Database, error) {
	db, err := storage.NewDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.MigrateSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	layers, err := layer.Build(ctx, cfg.Storage.Layers, cfg.Registry.Mime)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	mirror, err := layer.NewMirror(layers, cfg.Storage.Timeout())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	kind, err := archive.ParseKind(cfg.Registry.Kind)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	allow, err := cfg.AllowList()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	deny, err := cfg.DenyList()
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var hooks registry.Hooks
	if len(cfg.Webhooks.Endpoints) > 0 {
		key, err := cfg.WebhookSigningKey()
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		hooks = webhooks.New(webhooks.Config{
			Endpoints:  cfg.Webhooks.Endpoints,
			SigningKey: key,
			RetryLimit: cfg.Webhooks.RetryLimit,
			Backoff:    cfg.Webhooks.BackoffDuration(),
		})
	}

	svc := registry.NewService(db, mirror, registry.Config{
		Kind:      kind,
		Mime:      cfg.Registry.Mime,
		BodyLimit: cfg.Registry.BodyLimit,
		Allow:     allow,
		Deny:      deny,
	}, hooks)

	return svc, db, nil
}
