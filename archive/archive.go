// Package archive introspects uploaded package archives, extracting
// the package name, version and metadata document for the configured
// registry kind.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/xerrors"
)

// Kind selects the archive introspection variant.
type Kind string

const (
	// Npm archives are gzipped tarballs with a single top-level
	// directory containing package.json.
	Npm Kind = "npm"

	// Cargo archives are gzipped tarballs containing Cargo.toml and
	// .cargo_vcs_info.json.
	Cargo Kind = "cargo"
)

// ParseKind validates a configured registry kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Npm, Cargo:
		return Kind(s), nil
	case "":
		return Npm, nil
	}
	return "", xerrors.Errorf("unknown registry kind %q", s)
}

// Introspection errors.
var (
	ErrInvalidArchive  = errors.New("invalid archive")
	ErrMissingManifest = errors.New("missing manifest")
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrInvalidVersion  = errors.New("invalid version")
)

// Descriptor is the outcome of introspecting an archive.
type Descriptor struct {
	// Name of the package as declared by its manifest.
	Name string

	// Version declared by the manifest.
	Version *semver.Version

	// Meta is the metadata JSON stored alongside the version row.
	Meta []byte
}

// Introspect extracts the package descriptor from an archive of the
// given kind.
func Introspect(kind Kind, data []byte) (*Descriptor, error) {
	switch kind {
	case Npm:
		return readNpm(data)
	case Cargo:
		return readCargo(data)
	}
	return nil, xerrors.Errorf("unknown registry kind %q: %w", kind, ErrInvalidArchive)
}

// decompress gunzips the archive into memory. Archives are bounded by
// the configured body limit so buffering the expansion is fine.
func decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Errorf("reading gzip header: %w", ErrInvalidArchive)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, xerrors.Errorf("decompressing archive: %w", ErrInvalidArchive)
	}
	return out, nil
}

// tarEntries walks a tar stream and calls fn with each regular file's
// cleaned path and contents.
func tarEntries(contents []byte, fn func(path string, data []byte) error) error {
	tr := tar.NewReader(bytes.NewReader(contents))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("reading tar entry: %w", ErrInvalidArchive)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return xerrors.Errorf("reading tar entry %q: %w", hdr.Name, ErrInvalidArchive)
		}
		path := strings.TrimPrefix(hdr.Name, "./")
		if err := fn(path, data); err != nil {
			return err
		}
	}
}

func parseVersion(s string) (*semver.Version, error) {
	version, err := semver.StrictNewVersion(s)
	if err != nil {
		return nil, xerrors.Errorf("version %q: %w", s, ErrInvalidVersion)
	}
	return version, nil
}
