package core

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
)

// IPFSPrefix marks an opaque content-address reference.
const IPFSPrefix = "/ipfs/"

// PackageKey references a published artifact either by an opaque
// content address or by a human readable namespace/package/version
// pointer.
type PackageKey struct {
	// CID is set for /ipfs/<cid> references.
	CID string

	// Pointer components, set for namespace/package/version references.
	Namespace string
	Package   string
	Version   *semver.Version
}

// IsContent reports whether the key is an opaque content address.
func (k PackageKey) IsContent() bool {
	return k.CID != ""
}

func (k PackageKey) String() string {
	if k.IsContent() {
		return IPFSPrefix + k.CID
	}
	return fmt.Sprintf("%s/%s/%s", k.Namespace, k.Package, k.Version)
}

// ParsePackageKey parses a package reference. A reference starting
// with /ipfs/ must carry a well formed CID; anything else must be a
// three part namespace/package/version pointer with validated names
// and a valid semver version.
func ParsePackageKey(s string) (PackageKey, error) {
	if strings.HasPrefix(s, IPFSPrefix) {
		raw := s[len(IPFSPrefix):]
		if _, err := cid.Decode(raw); err != nil {
			return PackageKey{}, xerrors.Errorf("reference %q: invalid content id: %w", s, ErrBadRequest)
		}
		return PackageKey{CID: raw}, nil
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return PackageKey{}, xerrors.Errorf("reference %q: expected namespace/package/version: %w", s, ErrBadRequest)
	}
	if err := ValidateIdentifier(parts[0]); err != nil {
		return PackageKey{}, err
	}
	if err := ValidateIdentifier(parts[1]); err != nil {
		return PackageKey{}, err
	}
	version, err := semver.StrictNewVersion(parts[2])
	if err != nil {
		return PackageKey{}, xerrors.Errorf("reference %q: invalid version %q: %w", s, parts[2], ErrBadRequest)
	}
	return PackageKey{
		Namespace: parts[0],
		Package:   parts[1],
		Version:   version,
	}, nil
}

// PointerID computes the canonical identifier for a pointer reference:
// the hex encoded Keccak-256 hash of "namespace/package/version".
func PointerID(namespace, name string, version *semver.Version) string {
	path := fmt.Sprintf("%s/%s/%s", namespace, name, version)
	return hex.EncodeToString(Keccak256([]byte(path)))
}
