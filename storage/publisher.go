package storage

import (
	"context"

	"github.com/go-pg/pg/v10"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/core"
	"github.com/LavaMoat/ipfs-registry/metrics"
	"github.com/LavaMoat/ipfs-registry/model"
)

// CreatePublisher registers a new publisher for the address. Fails
// with core.ErrConflict when the address is already registered.
func (d *Database) CreatePublisher(ctx context.Context, addr core.Address) (*model.Publisher, error) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "publishers"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	publisher := &model.Publisher{Address: addr.Bytes()}
	if _, err := d.db.ModelContext(ctx, publisher).Insert(); err != nil {
		if isConflict(err) {
			return nil, xerrors.Errorf("publisher %s already registered: %w", addr, core.ErrConflict)
		}
		return nil, xerrors.Errorf("inserting publisher: %w", err)
	}

	// Fetch the row back so created_at reflects the database value.
	if err := d.db.ModelContext(ctx, publisher).WherePK().Select(); err != nil {
		return nil, xerrors.Errorf("fetching publisher %d: %w", publisher.PublisherID, err)
	}
	log.Infow("registered publisher", "address", addr.String())
	return publisher, nil
}

// FindPublisher looks a publisher up by address.
func (d *Database) FindPublisher(ctx context.Context, addr core.Address) (*model.Publisher, error) {
	publisher := new(model.Publisher)
	err := d.db.ModelContext(ctx, publisher).
		Where("address = ?", addr.Bytes()).
		Select()
	if err != nil {
		if noRows(err) {
			return nil, xerrors.Errorf("publisher %s: %w", addr, core.ErrNotFound)
		}
		return nil, xerrors.Errorf("finding publisher %s: %w", addr, err)
	}
	return publisher, nil
}

func findPublisherTx(tx *pg.Tx, addr core.Address) (*model.Publisher, error) {
	publisher := new(model.Publisher)
	err := tx.Model(publisher).
		Where("address = ?", addr.Bytes()).
		Select()
	if err != nil {
		if noRows(err) {
			return nil, xerrors.Errorf("publisher %s: %w", addr, core.ErrNotFound)
		}
		return nil, xerrors.Errorf("finding publisher %s: %w", addr, err)
	}
	return publisher, nil
}
