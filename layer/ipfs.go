package layer

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	ipfsapi "github.com/ipfs/go-ipfs-api"
	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/core"
)

// ipfsTimeout bounds each gateway call.
const ipfsTimeout = 30 * time.Second

// IPFSLayer stores blobs on a content-addressed network gateway. Put
// pins the uploaded blob and returns its /ipfs/<cid> key.
type IPFSLayer struct {
	shell *ipfsapi.Shell
}

// NewIPFSLayer connects a layer to the gateway API at url.
func NewIPFSLayer(url string) (*IPFSLayer, error) {
	shell := ipfsapi.NewShell(url)
	shell.SetTimeout(ipfsTimeout)
	return &IPFSLayer{shell: shell}, nil
}

func (l *IPFSLayer) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cid, err := l.shell.Add(bytes.NewReader(data), ipfsapi.Pin(true))
	if err != nil {
		return "", xerrors.Errorf("adding blob to gateway: %w", err)
	}
	log.Debugw("stored blob", "layer", "ipfs", "cid", cid, "size", len(data))
	return core.IPFSPrefix + cid, nil
}

func (l *IPFSLayer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := l.shell.Cat(trimPrefix(key))
	if err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no link named") {
			return nil, core.ErrNotFound
		}
		return nil, xerrors.Errorf("fetching %s from gateway: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, xerrors.Errorf("reading %s from gateway: %w", key, err)
	}
	return data, nil
}

func (l *IPFSLayer) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, _, err := l.shell.BlockStat(trimPrefix(key)); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, xerrors.Errorf("stat %s on gateway: %w", key, err)
	}
	return true, nil
}

func trimPrefix(key string) string {
	return strings.TrimPrefix(key, core.IPFSPrefix)
}
