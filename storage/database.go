// Package storage is the transactional metadata store: publishers,
// namespaces, members, restrictions, packages and versions backed by
// Postgres.
package storage

import (
	"context"
	"errors"

	"github.com/go-pg/pg/v10"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	v1 "github.com/LavaMoat/ipfs-registry/schemas/v1"
)

var log = logging.Logger("registry/storage")

// Database wraps the Postgres connection pool.
type Database struct {
	db *pg.DB
}

// NewDatabase connects to the database at url and verifies the
// connection.
func NewDatabase(ctx context.Context, url string) (*Database, error) {
	opt, err := pg.ParseURL(url)
	if err != nil {
		return nil, xerrors.Errorf("parsing database url: %w", err)
	}
	db := pg.Connect(opt)
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, xerrors.Errorf("connecting to database: %w", err)
	}
	return &Database{db: db}, nil
}

// AsORM exposes the underlying ORM handle.
func (d *Database) AsORM() *pg.DB {
	return d.db
}

func (d *Database) Close() error {
	return d.db.Close()
}

// MigrateSchema initialises the migration bookkeeping and applies any
// pending schema patches.
func (d *Database) MigrateSchema(ctx context.Context) error {
	if _, _, err := v1.Patches.Run(d.db, "init"); err != nil {
		return xerrors.Errorf("initialising migrations: %w", err)
	}
	oldVersion, newVersion, err := v1.Patches.Run(d.db, "up")
	if err != nil {
		return xerrors.Errorf("migrating schema: %w", err)
	}
	if newVersion != oldVersion {
		log.Infow("migrated schema", "from", oldVersion, "to", newVersion)
	}
	return nil
}

// isConflict reports whether the error is a unique or foreign key
// violation.
func isConflict(err error) bool {
	pgErr, ok := err.(pg.Error)
	return ok && pgErr.IntegrityViolation()
}

func noRows(err error) bool {
	return errors.Is(err, pg.ErrNoRows)
}
