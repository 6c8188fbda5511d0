package registry

import (
	"bytes"
	"context"
	"crypto/sha256"

	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/core"
)

// Fetch resolves a package reference to its archive bytes.
//
// A /ipfs/<cid> reference reads the primary layer's key directly; no
// checksum or signature verification is possible and the bytes are
// returned as-is. A namespace/package/version pointer resolves through
// the metadata store and the returned blob is verified against the
// recorded checksum and signature, guarding against blob tampering and
// operator-swapped pointers.
func (s *Service) Fetch(ctx context.Context, id string) ([]byte, error) {
	key, err := core.ParsePackageKey(id)
	if err != nil {
		return nil, err
	}

	if key.IsContent() {
		data, err := s.mirror.Get(ctx, key.String())
		if err != nil {
			return nil, err
		}
		if s.hooks != nil {
			s.hooks.PackageFetched(id)
		}
		return data, nil
	}

	row, err := s.store.FindVersion(ctx, key.Namespace, key.Package, key.Version)
	if err != nil {
		return nil, err
	}

	data, err := s.mirror.Get(ctx, row.ContentID)
	if err != nil {
		return nil, err
	}

	checksum := sha256.Sum256(data)
	if !bytes.Equal(checksum[:], row.Checksum) {
		log.Errorw("checksum mismatch on fetch", "id", id, "content_id", row.ContentID)
		return nil, xerrors.Errorf("checksum mismatch for %s: %w", id, core.ErrIntegrityFailure)
	}

	sig, err := core.SignatureFromBytes(row.Signature)
	if err != nil {
		return nil, xerrors.Errorf("stored signature for %s: %w", id, core.ErrIntegrityFailure)
	}
	signer, err := core.RecoverAddress(sig, data)
	if err != nil {
		return nil, xerrors.Errorf("recovering signer for %s: %w", id, core.ErrIntegrityFailure)
	}
	if row.Publisher == nil || signer != row.Publisher.Addr() {
		log.Errorw("signer mismatch on fetch", "id", id, "recovered", signer.String())
		return nil, xerrors.Errorf("signer mismatch for %s: %w", id, core.ErrIntegrityFailure)
	}

	if s.hooks != nil {
		s.hooks.PackageFetched(id)
	}
	return data, nil
}
