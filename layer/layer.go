// Package layer provides the storage layer abstraction: uniform
// put/get/has over content-addressed gateways, S3 compatible buckets,
// local directories and in-memory stores, plus the mirror that fans
// writes out across an ordered list of layers.
package layer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("registry/layer")

// Layer is a durable blob store. Put must be idempotent for identical
// blobs: content-addressed layers return the same key, the others key
// objects by the SHA-256 hex of the blob.
type Layer interface {
	// Put writes the blob and returns the layer-specific key.
	Put(ctx context.Context, data []byte) (string, error)

	// Get returns the blob for a key, or core.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Has reports whether the layer holds the key.
	Has(ctx context.Context, key string) (bool, error)
}

// ChecksumKey is the object key used by non-content-addressed layers:
// the SHA-256 digest of the blob in hex.
func ChecksumKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WriteError reports a failed fan-out write including the index of the
// failing layer.
type WriteError struct {
	Index int
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("storage write failed at layer %d: %v", e.Index, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError reports a failed read that was not a miss.
type ReadError struct {
	Index int
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("storage read failed at layer %d: %v", e.Index, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Config describes one configured storage layer. Exactly one of the
// field groups is set: URL for a content-addressed gateway; Region,
// Profile and Bucket for an S3 compatible bucket; Directory for a
// local filesystem layer; Memory for an in-process store.
type Config struct {
	URL string `toml:"url"`

	Region  string `toml:"region"`
	Profile string `toml:"profile"`
	Bucket  string `toml:"bucket"`

	Directory string `toml:"directory"`

	Memory bool `toml:"memory"`
}

// Build instantiates the configured layers in order.
func Build(ctx context.Context, configs []Config, mime string) ([]Layer, error) {
	if len(configs) == 0 {
		return nil, xerrors.Errorf("at least one storage layer must be configured")
	}
	layers := make([]Layer, 0, len(configs))
	for i, c := range configs {
		l, err := build(ctx, c, mime)
		if err != nil {
			return nil, xerrors.Errorf("building storage layer %d: %w", i, err)
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func build(ctx context.Context, c Config, mime string) (Layer, error) {
	switch {
	case c.URL != "":
		return NewIPFSLayer(c.URL)
	case c.Bucket != "":
		return NewS3Layer(ctx, c.Region, c.Profile, c.Bucket, mime)
	case c.Directory != "":
		return NewFileLayer(c.Directory)
	case c.Memory:
		return NewMemoryLayer(), nil
	}
	return nil, xerrors.Errorf("storage layer needs one of url, bucket, directory or memory")
}
