package archive

import (
	"encoding/json"
	"strings"

	"golang.org/x/xerrors"
)

const npmManifest = "package.json"

type npmPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// readNpm extracts the descriptor from an npm style tarball: a gzipped
// tar with a single top-level directory containing package.json. The
// metadata document is the raw bytes of that file.
func readNpm(data []byte) (*Descriptor, error) {
	contents, err := decompress(data)
	if err != nil {
		return nil, err
	}

	var manifest []byte
	var topLevel string
	err = tarEntries(contents, func(path string, data []byte) error {
		parts := strings.Split(path, "/")
		if len(parts) != 2 || parts[1] != npmManifest {
			return nil
		}
		if topLevel != "" && parts[0] != topLevel {
			return xerrors.Errorf("multiple top-level directories carry %s: %w", npmManifest, ErrInvalidArchive)
		}
		topLevel = parts[0]
		manifest = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, xerrors.Errorf("archive has no %s: %w", npmManifest, ErrMissingManifest)
	}

	var pkg npmPackage
	if err := json.Unmarshal(manifest, &pkg); err != nil {
		return nil, xerrors.Errorf("parsing %s: %w", npmManifest, ErrInvalidManifest)
	}
	if pkg.Name == "" || pkg.Version == "" {
		return nil, xerrors.Errorf("%s missing name or version: %w", npmManifest, ErrInvalidManifest)
	}
	version, err := parseVersion(pkg.Version)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Name:    pkg.Name,
		Version: version,
		Meta:    manifest,
	}, nil
}
