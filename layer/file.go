package layer

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/core"
)

// FileLayer stores blobs in a local directory, one file per blob named
// by the SHA-256 hex of its contents.
type FileLayer struct {
	root string
}

// NewFileLayer resolves and creates the root directory.
func NewFileLayer(root string) (*FileLayer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, xerrors.Errorf("resolving directory %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, xerrors.Errorf("creating directory %s: %w", abs, err)
	}
	return &FileLayer{root: abs}, nil
}

func (l *FileLayer) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := ChecksumKey(data)
	path := filepath.Join(l.root, key)
	if _, err := os.Stat(path); err == nil {
		// Content-addressed: an existing file already holds these bytes.
		return key, nil
	}
	tmp, err := os.CreateTemp(l.root, "blob-*")
	if err != nil {
		return "", xerrors.Errorf("creating blob file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", xerrors.Errorf("writing blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", xerrors.Errorf("closing blob %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", xerrors.Errorf("renaming blob %s: %w", key, err)
	}
	return key, nil
}

func (l *FileLayer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.root, filepath.Base(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrNotFound
		}
		return nil, xerrors.Errorf("reading blob %s: %w", key, err)
	}
	return data, nil
}

func (l *FileLayer) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(l.root, filepath.Base(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, xerrors.Errorf("stat blob %s: %w", key, err)
	}
	return true, nil
}
