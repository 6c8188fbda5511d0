package layer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavaMoat/ipfs-registry/core"
)

// failLayer fails every operation.
type failLayer struct{ err error }

func (f *failLayer) Put(ctx context.Context, data []byte) (string, error) { return "", f.err }
func (f *failLayer) Get(ctx context.Context, key string) ([]byte, error)  { return nil, f.err }
func (f *failLayer) Has(ctx context.Context, key string) (bool, error)    { return false, f.err }

func TestMirrorPutFanOut(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemoryLayer(), NewMemoryLayer()
	m, err := NewMirror([]Layer{a, b}, 0)
	require.NoError(t, err)

	blob := []byte("mock blob")
	key, err := m.Put(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, ChecksumKey(blob), key)

	for _, l := range []Layer{a, b} {
		ok, err := l.Has(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestMirrorPutAllOrNothing(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryLayer()
	boom := errors.New("boom")
	m, err := NewMirror([]Layer{a, &failLayer{err: boom}}, 0)
	require.NoError(t, err)

	_, err = m.Put(ctx, []byte("mock blob"))
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, 1, werr.Index)
	assert.ErrorIs(t, err, boom)
}

func TestMirrorGetFallsThrough(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemoryLayer(), NewMemoryLayer()
	m, err := NewMirror([]Layer{a, b}, 0)
	require.NoError(t, err)

	// Blob only in the secondary layer.
	blob := []byte("mock blob")
	key, err := b.Put(ctx, blob)
	require.NoError(t, err)

	data, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, blob, data)

	// Has consults the primary only.
	ok, err := m.Has(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMirrorGetNotFound(t *testing.T) {
	ctx := context.Background()
	m, err := NewMirror([]Layer{NewMemoryLayer(), NewMemoryLayer()}, 0)
	require.NoError(t, err)

	_, err = m.Get(ctx, "0000")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMirrorGetShortCircuits(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	b := NewMemoryLayer()
	key, err := b.Put(ctx, []byte("mock blob"))
	require.NoError(t, err)

	m, err := NewMirror([]Layer{&failLayer{err: boom}, b}, 0)
	require.NoError(t, err)

	// The failing primary is not a miss, so the read does not fall
	// through to the layer that has the blob.
	_, err = m.Get(ctx, key)
	var rerr *ReadError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 0, rerr.Index)
}

func TestMirrorNeedsLayers(t *testing.T) {
	_, err := NewMirror(nil, 0)
	assert.Error(t, err)
}
