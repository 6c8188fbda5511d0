package layer

import (
	"context"
	"sync"

	"github.com/LavaMoat/ipfs-registry/core"
)

// MemoryLayer is an in-process blob store used in tests and as a
// scratch layer for single-node deployments.
type MemoryLayer struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryLayer() *MemoryLayer {
	return &MemoryLayer{blobs: make(map[string][]byte)}
}

func (l *MemoryLayer) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := ChecksumKey(data)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.blobs[key]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		l.blobs[key] = stored
	}
	return key, nil
}

func (l *MemoryLayer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	data, ok := l.blobs[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (l *MemoryLayer) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.blobs[key]
	return ok, nil
}

// Corrupt overwrites a stored blob in place. Test helper for integrity
// verification scenarios.
func (l *MemoryLayer) Corrupt(key string, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blobs[key] = data
}
