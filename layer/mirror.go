package layer

import (
	"context"
	"errors"
	"time"

	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/core"
	"github.com/LavaMoat/ipfs-registry/metrics"
)

// Mirror fans writes out across an ordered list of layers. The first
// layer is primary: its key is the canonical content id recorded in
// metadata, and Has consults it alone. Writes are all-or-nothing per
// call; there is no rollback of earlier layer writes because layers
// are content-addressed and leftover blobs are harmless duplicates.
type Mirror struct {
	layers  []Layer
	timeout time.Duration
}

// NewMirror wraps the ordered layer list. timeout bounds each
// per-layer operation; zero disables the bound.
func NewMirror(layers []Layer, timeout time.Duration) (*Mirror, error) {
	if len(layers) == 0 {
		return nil, xerrors.Errorf("mirror needs at least one layer")
	}
	return &Mirror{layers: layers, timeout: timeout}, nil
}

func (m *Mirror) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// Put writes the blob to every layer in order and returns the primary
// layer's key. A failure on any layer aborts the remaining writes and
// surfaces as a WriteError carrying the layer index.
func (m *Mirror) Put(ctx context.Context, data []byte) (string, error) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Operation, "put"))
	stop := metrics.Timer(ctx, metrics.StorageDuration)
	defer stop()

	var primary string
	for i, l := range m.layers {
		opCtx, cancel := m.opCtx(ctx)
		key, err := l.Put(opCtx, data)
		cancel()
		if err != nil {
			log.Errorw("mirror write failed", "layer", i, "error", err)
			return "", &WriteError{Index: i, Err: err}
		}
		if i == 0 {
			primary = key
		}
	}
	return primary, nil
}

// Get returns the blob from the first layer able to serve it. Misses
// move on to the next layer; any other error short-circuits as a
// ReadError. core.ErrNotFound is returned only when every layer
// reported a miss.
func (m *Mirror) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Operation, "get"))
	stop := metrics.Timer(ctx, metrics.StorageDuration)
	defer stop()

	for i, l := range m.layers {
		opCtx, cancel := m.opCtx(ctx)
		data, err := l.Get(opCtx, key)
		cancel()
		if err == nil {
			return data, nil
		}
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		log.Errorw("mirror read failed", "layer", i, "error", err)
		return nil, &ReadError{Index: i, Err: err}
	}
	return nil, core.ErrNotFound
}

// Has reports whether the primary layer holds the key.
func (m *Mirror) Has(ctx context.Context, key string) (bool, error) {
	opCtx, cancel := m.opCtx(ctx)
	defer cancel()
	return m.layers[0].Has(opCtx, key)
}
