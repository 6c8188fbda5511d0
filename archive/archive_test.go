package archive

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tgz builds a gzipped tarball from path/content pairs.
func tgz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for path, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     path,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const mockPackageJSON = `{"name": "mock-package", "version": "1.0.0", "description": "mock"}`

func TestIntrospectNpm(t *testing.T) {
	data := tgz(t, map[string]string{
		"package/package.json": mockPackageJSON,
		"package/index.js":     "module.exports = {}",
	})

	d, err := Introspect(Npm, data)
	require.NoError(t, err)
	assert.Equal(t, "mock-package", d.Name)
	assert.Equal(t, "1.0.0", d.Version.String())
	assert.Equal(t, []byte(mockPackageJSON), d.Meta)
}

func TestIntrospectNpmErrors(t *testing.T) {
	// Not gzip.
	_, err := Introspect(Npm, []byte("plain text"))
	assert.ErrorIs(t, err, ErrInvalidArchive)

	// No manifest.
	_, err = Introspect(Npm, tgz(t, map[string]string{"package/index.js": "x"}))
	assert.ErrorIs(t, err, ErrMissingManifest)

	// Manifest nested too deep does not count.
	_, err = Introspect(Npm, tgz(t, map[string]string{"a/b/package.json": mockPackageJSON}))
	assert.ErrorIs(t, err, ErrMissingManifest)

	// Manifest not JSON.
	_, err = Introspect(Npm, tgz(t, map[string]string{"package/package.json": "nope"}))
	assert.ErrorIs(t, err, ErrInvalidManifest)

	// Missing fields.
	_, err = Introspect(Npm, tgz(t, map[string]string{"package/package.json": `{"name": "x"}`}))
	assert.ErrorIs(t, err, ErrInvalidManifest)

	// Bad semver.
	_, err = Introspect(Npm, tgz(t, map[string]string{
		"package/package.json": `{"name": "mock-package", "version": "one.two"}`,
	}))
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestIntrospectCargo(t *testing.T) {
	manifest := "[package]\nname = \"mock-crate\"\nversion = \"0.2.1\"\nedition = \"2021\"\n"
	data := tgz(t, map[string]string{
		"mock-crate-0.2.1/Cargo.toml":           manifest,
		"mock-crate-0.2.1/.cargo_vcs_info.json": `{"git": {"sha1": "abc"}}`,
		"mock-crate-0.2.1/src/lib.rs":           "",
	})

	d, err := Introspect(Cargo, data)
	require.NoError(t, err)
	assert.Equal(t, "mock-crate", d.Name)
	assert.Equal(t, "0.2.1", d.Version.String())
	assert.JSONEq(t, `{
		"package": {"name": "mock-crate", "version": "0.2.1"},
		"vcs_info": {"git": {"sha1": "abc"}}
	}`, string(d.Meta))
}

func TestIntrospectCargoErrors(t *testing.T) {
	manifest := "[package]\nname = \"mock-crate\"\nversion = \"0.2.1\"\n"

	// Missing VCS info.
	_, err := Introspect(Cargo, tgz(t, map[string]string{
		"mock-crate-0.2.1/Cargo.toml": manifest,
	}))
	assert.ErrorIs(t, err, ErrMissingManifest)

	// Missing Cargo.toml.
	_, err = Introspect(Cargo, tgz(t, map[string]string{
		"mock-crate-0.2.1/.cargo_vcs_info.json": `{}`,
	}))
	assert.ErrorIs(t, err, ErrMissingManifest)

	// Bad TOML.
	_, err = Introspect(Cargo, tgz(t, map[string]string{
		"x/Cargo.toml":           "not toml ===",
		"x/.cargo_vcs_info.json": `{}`,
	}))
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Npm, kind)

	_, err = ParseKind("npm")
	assert.NoError(t, err)
	_, err = ParseKind("cargo")
	assert.NoError(t, err)
	_, err = ParseKind("deb")
	assert.Error(t, err)
}
