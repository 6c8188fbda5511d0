package archive

import (
	"encoding/json"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

const (
	cargoManifest = "Cargo.toml"
	cargoVcsInfo  = ".cargo_vcs_info.json"
)

type cargoPackage struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
}

// cargoMeta is the metadata document recorded for cargo archives.
type cargoMeta struct {
	Package struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"package"`
	VcsInfo json.RawMessage `json:"vcs_info"`
}

// readCargo extracts the descriptor from a cargo style tarball, which
// must contain both Cargo.toml and .cargo_vcs_info.json. The metadata
// document combines the extracted package fields with the VCS info.
func readCargo(data []byte) (*Descriptor, error) {
	contents, err := decompress(data)
	if err != nil {
		return nil, err
	}

	var manifest, vcsInfo []byte
	err = tarEntries(contents, func(path string, data []byte) error {
		switch base(path) {
		case cargoManifest:
			if manifest == nil {
				manifest = data
			}
		case cargoVcsInfo:
			if vcsInfo == nil {
				vcsInfo = data
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, xerrors.Errorf("archive has no %s: %w", cargoManifest, ErrMissingManifest)
	}
	if vcsInfo == nil {
		return nil, xerrors.Errorf("archive has no %s: %w", cargoVcsInfo, ErrMissingManifest)
	}

	var pkg cargoPackage
	if err := toml.Unmarshal(manifest, &pkg); err != nil {
		return nil, xerrors.Errorf("parsing %s: %w", cargoManifest, ErrInvalidManifest)
	}
	if pkg.Package.Name == "" || pkg.Package.Version == "" {
		return nil, xerrors.Errorf("%s missing package.name or package.version: %w", cargoManifest, ErrInvalidManifest)
	}
	if !json.Valid(vcsInfo) {
		return nil, xerrors.Errorf("parsing %s: %w", cargoVcsInfo, ErrInvalidManifest)
	}
	version, err := parseVersion(pkg.Package.Version)
	if err != nil {
		return nil, err
	}

	var meta cargoMeta
	meta.Package.Name = pkg.Package.Name
	meta.Package.Version = pkg.Package.Version
	meta.VcsInfo = vcsInfo
	encoded, err := json.Marshal(&meta)
	if err != nil {
		return nil, xerrors.Errorf("encoding cargo metadata: %w", err)
	}

	return &Descriptor{
		Name:    pkg.Package.Name,
		Version: version,
		Meta:    encoded,
	}, nil
}

func base(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
