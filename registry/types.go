// Package registry orchestrates the publish pipeline, the identifier
// resolver and the typed request/response contracts the HTTP surface
// exposes.
package registry

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/LavaMoat/ipfs-registry/model"
)

// WellKnownMessage is the literal payload a publisher signs to prove
// control of their key during signup.
const WellKnownMessage = ".ipfs-registry"

// PublisherRecord is the signup response.
type PublisherRecord struct {
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// NamespaceRecord is the namespace registration response.
type NamespaceRecord struct {
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

// PackageMeta names an exact release of a package.
type PackageMeta struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Artifact describes a package in the context of its namespace.
type Artifact struct {
	Namespace string      `json:"namespace"`
	Package   PackageMeta `json:"package"`
}

// Receipt acknowledges a successful publish.
type Receipt struct {
	// ID is the pointer reference namespace/package/version.
	ID string `json:"id"`

	Artifact Artifact `json:"artifact"`

	// Key is the canonical content id: the primary storage layer's
	// key, recorded verbatim.
	Key string `json:"key"`

	// Checksum is the SHA-256 digest of the archive bytes in hex.
	Checksum string `json:"checksum"`
}

// VersionRecord is the version metadata response.
type VersionRecord struct {
	Name      string          `json:"name,omitempty"`
	Version   string          `json:"version"`
	ContentID string          `json:"content_id"`
	PointerID string          `json:"pointer_id"`
	Signature string          `json:"signature"`
	Checksum  string          `json:"checksum"`
	Package   json.RawMessage `json:"package,omitempty"`
	Yanked    *string         `json:"yanked,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PackageRecord is one entry of a package listing.
type PackageRecord struct {
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	Latest    *VersionRecord `json:"latest,omitempty"`
}

// PackageListing is a page of packages.
type PackageListing struct {
	Packages []PackageRecord `json:"packages"`
	Total    int             `json:"total"`
}

// VersionListing is a page of versions.
type VersionListing struct {
	Versions []VersionRecord `json:"versions"`
	Total    int             `json:"total"`
}

func versionRecord(row *model.Version) *VersionRecord {
	out := &VersionRecord{
		Version:   row.VersionString(),
		ContentID: row.ContentID,
		PointerID: row.PointerID,
		Signature: base64.StdEncoding.EncodeToString(row.Signature),
		Checksum:  hex.EncodeToString(row.Checksum),
		Package:   json.RawMessage(row.Package),
		Yanked:    row.Yanked,
		CreatedAt: row.CreatedAt,
	}
	if row.Pkg != nil {
		out.Name = row.Pkg.Name
	}
	return out
}
