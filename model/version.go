package model

import (
	"time"

	"github.com/Masterminds/semver/v3"
)

// Version is one published release of a package. The semver components
// are stored in separate columns so uniqueness and ordering can be
// expressed in SQL; build metadata participates in uniqueness but not
// in ordering.
type Version struct {
	//lint:ignore U1000 tableName is a convention used by go-pg
	tableName struct{} `pg:"versions"`

	VersionID   int64 `pg:",pk"`
	PackageID   int64 `pg:",notnull,unique:versions_package_semver"`
	PublisherID int64 `pg:",notnull"`

	Major int64  `pg:",notnull,use_zero,unique:versions_package_semver"`
	Minor int64  `pg:",notnull,use_zero,unique:versions_package_semver"`
	Patch int64  `pg:",notnull,use_zero,unique:versions_package_semver"`
	Pre   string `pg:",notnull,use_zero,unique:versions_package_semver"`
	Build string `pg:",notnull,use_zero,unique:versions_package_semver"`

	// ContentID is the primary storage layer's key, recorded verbatim.
	ContentID string `pg:",notnull"`

	// PointerID is hex(Keccak256("namespace/package/version")).
	PointerID string `pg:",notnull,unique"`

	Signature []byte `pg:",notnull"`
	Checksum  []byte `pg:",notnull"`

	// Package holds the metadata document extracted from the archive.
	Package string `pg:"package,notnull,type:jsonb"`

	// Yanked carries the yank reason; NULL means not yanked. The
	// transition NULL to non-NULL happens at most once.
	Yanked *string `pg:"yanked"`

	CreatedAt time.Time `pg:",notnull,default:now()"`

	Pkg       *Package   `pg:"rel:has-one,fk:package_id"`
	Publisher *Publisher `pg:"rel:has-one,fk:publisher_id"`
}

// SetSemver fills the component columns from a parsed version.
func (v *Version) SetSemver(version *semver.Version) {
	v.Major = int64(version.Major())
	v.Minor = int64(version.Minor())
	v.Patch = int64(version.Patch())
	v.Pre = version.Prerelease()
	v.Build = version.Metadata()
}

// Semver reassembles the stored components.
func (v *Version) Semver() *semver.Version {
	return semver.New(uint64(v.Major), uint64(v.Minor), uint64(v.Patch), v.Pre, v.Build)
}

// VersionString renders the stored version including build metadata.
func (v *Version) VersionString() string {
	return v.Semver().String()
}

// IsYanked reports whether the version carries a yank mark.
func (v *Version) IsYanked() bool {
	return v.Yanked != nil
}
