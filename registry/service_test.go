package registry

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/archive"
	"github.com/LavaMoat/ipfs-registry/core"
	"github.com/LavaMoat/ipfs-registry/layer"
	"github.com/LavaMoat/ipfs-registry/model"
	"github.com/LavaMoat/ipfs-registry/storage"
)

// fakeStore is an in-memory MetadataStore with the same invariants as
// the database-backed implementation.
type fakeStore struct {
	nextID     int64
	publishers map[core.Address]*model.Publisher
	namespaces map[string]*model.Namespace
	packages   map[string]*model.Package // namespace/name
	versions   []*model.Version
	owners     map[int64]core.Address
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		publishers: map[core.Address]*model.Publisher{},
		namespaces: map[string]*model.Namespace{},
		packages:   map[string]*model.Package{},
		owners:     map[int64]core.Address{},
	}
}

func (f *fakeStore) id() int64 { f.nextID++; return f.nextID }

func (f *fakeStore) CreatePublisher(ctx context.Context, addr core.Address) (*model.Publisher, error) {
	if _, ok := f.publishers[addr]; ok {
		return nil, core.ErrConflict
	}
	p := &model.Publisher{PublisherID: f.id(), Address: addr.Bytes(), CreatedAt: time.Now().UTC()}
	f.publishers[addr] = p
	return p, nil
}

func (f *fakeStore) CreateNamespace(ctx context.Context, name string, owner core.Address) (*model.Namespace, error) {
	for _, ns := range f.namespaces {
		if ns.Skeleton == core.Skeleton(name) {
			return nil, core.ErrConflict
		}
	}
	if err := core.ValidateIdentifier(name); err != nil {
		return nil, err
	}
	p, ok := f.publishers[owner]
	if !ok {
		return nil, core.ErrUnauthorized
	}
	ns := &model.Namespace{
		NamespaceID: f.id(),
		Name:        name,
		Skeleton:    core.Skeleton(name),
		OwnerID:     p.PublisherID,
		Owner:       p,
		CreatedAt:   time.Now().UTC(),
	}
	f.namespaces[name] = ns
	f.owners[ns.NamespaceID] = owner
	return ns, nil
}

func (f *fakeStore) AddMember(ctx context.Context, namespace string, signer, target core.Address, administrator bool, packageRestriction string) error {
	return xerrors.New("not implemented")
}

func (f *fakeStore) RemoveMember(ctx context.Context, namespace string, signer, target core.Address) error {
	return xerrors.New("not implemented")
}

func (f *fakeStore) GrantAccess(ctx context.Context, namespace, packageName string, signer, target core.Address) error {
	return xerrors.New("not implemented")
}

func (f *fakeStore) RevokeAccess(ctx context.Context, namespace, packageName string, signer, target core.Address) error {
	return xerrors.New("not implemented")
}

func (f *fakeStore) AuthorizePublish(ctx context.Context, namespace string, signer core.Address, packageName string) (*model.Namespace, *model.Publisher, error) {
	ns, ok := f.namespaces[namespace]
	if !ok {
		return nil, nil, core.ErrNotFound
	}
	p, ok := f.publishers[signer]
	if !ok {
		return nil, nil, core.ErrUnauthorized
	}
	if f.owners[ns.NamespaceID] != signer {
		return nil, nil, core.ErrUnauthorized
	}
	return ns, p, nil
}

func (f *fakeStore) InsertVersion(ctx context.Context, ns *model.Namespace, publisher *model.Publisher, params storage.VersionParams) (*model.Version, error) {
	key := ns.Name + "/" + params.PackageName
	pkg, ok := f.packages[key]
	if !ok {
		pkg = &model.Package{
			PackageID:   f.id(),
			NamespaceID: ns.NamespaceID,
			Name:        params.PackageName,
			Skeleton:    core.Skeleton(params.PackageName),
			CreatedAt:   time.Now().UTC(),
		}
		f.packages[key] = pkg
	}
	for _, row := range f.versions {
		if row.PackageID == pkg.PackageID && !params.Version.GreaterThan(row.Semver()) {
			return nil, core.ErrConflict
		}
	}
	row := &model.Version{
		VersionID:   f.id(),
		PackageID:   pkg.PackageID,
		PublisherID: publisher.PublisherID,
		ContentID:   params.ContentID,
		PointerID:   params.PointerID,
		Signature:   params.Signature.Bytes(),
		Checksum:    params.Checksum,
		Package:     string(params.Meta),
		CreatedAt:   time.Now().UTC(),
		Pkg:         pkg,
		Publisher:   publisher,
	}
	row.SetSemver(params.Version)
	f.versions = append(f.versions, row)
	return row, nil
}

func (f *fakeStore) FindVersion(ctx context.Context, namespace, packageName string, version *semver.Version) (*model.Version, error) {
	pkg, ok := f.packages[namespace+"/"+packageName]
	if !ok {
		return nil, core.ErrNotFound
	}
	for _, row := range f.versions {
		if row.PackageID == pkg.PackageID && row.Semver().Equal(version) && row.Build == version.Metadata() {
			return row, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeStore) FindVersionByPointerID(ctx context.Context, pointerID string) (*model.Version, error) {
	for _, row := range f.versions {
		if row.PointerID == pointerID {
			return row, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeStore) FindVersionByContentID(ctx context.Context, contentID string) (*model.Version, error) {
	for _, row := range f.versions {
		if row.ContentID == contentID {
			return row, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeStore) YankVersion(ctx context.Context, versionID int64, signer core.Address, reason string) error {
	for _, row := range f.versions {
		if row.VersionID != versionID {
			continue
		}
		if f.owners[row.Pkg.NamespaceID] != signer {
			return core.ErrUnauthorized
		}
		if row.IsYanked() {
			return core.ErrConflict
		}
		row.Yanked = &reason
		return nil
	}
	return core.ErrNotFound
}

func (f *fakeStore) ListPackages(ctx context.Context, namespace string, pager storage.Pager, latest bool) ([]*storage.PackageEntry, int, error) {
	ns, ok := f.namespaces[namespace]
	if !ok {
		return nil, 0, core.ErrNotFound
	}
	var out []*storage.PackageEntry
	for _, pkg := range f.packages {
		if pkg.NamespaceID == ns.NamespaceID {
			out = append(out, &storage.PackageEntry{Package: pkg})
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) ListVersions(ctx context.Context, namespace, packageName string, rng *semver.Constraints, pager storage.Pager) ([]*model.Version, int, error) {
	pkg, ok := f.packages[namespace+"/"+packageName]
	if !ok {
		return nil, 0, core.ErrNotFound
	}
	var out []*model.Version
	for _, row := range f.versions {
		if row.PackageID != pkg.PackageID {
			continue
		}
		if rng != nil && !rng.Check(row.Semver()) {
			continue
		}
		out = append(out, row)
	}
	return out, len(out), nil
}

func (f *fakeStore) LatestVersion(ctx context.Context, namespace, packageName string, includePrerelease bool) (*model.Version, error) {
	pkg, ok := f.packages[namespace+"/"+packageName]
	if !ok {
		return nil, core.ErrNotFound
	}
	var latest *model.Version
	for _, row := range f.versions {
		if row.PackageID != pkg.PackageID {
			continue
		}
		if !includePrerelease && row.Pre != "" {
			continue
		}
		if latest == nil || row.Semver().GreaterThan(latest.Semver()) {
			latest = row
		}
	}
	if latest == nil {
		return nil, core.ErrNotFound
	}
	return latest, nil
}

var _ MetadataStore = (*fakeStore)(nil)

// npmArchive builds an npm style tarball for the version.
func npmArchive(t *testing.T, name, version string) []byte {
	t.Helper()
	manifest := fmt.Sprintf(`{"name": %q, "version": %q}`, name, version)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "package/package.json",
		Mode:     0o644,
		Size:     int64(len(manifest)),
		Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write([]byte(manifest))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fixture struct {
	svc     *Service
	store   *fakeStore
	primary *layer.MemoryLayer
	key     *secp256k1.PrivateKey
	addr    core.Address
}

func setup(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	cfg := Config{
		Kind:      archive.Npm,
		Mime:      "application/gzip",
		BodyLimit: 1 << 20,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	primary := layer.NewMemoryLayer()
	mirror, err := layer.NewMirror([]layer.Layer{primary, layer.NewMemoryLayer()}, 0)
	require.NoError(t, err)

	store := newFakeStore()
	f := &fixture{
		svc:     NewService(store, mirror, cfg, nil),
		store:   store,
		primary: primary,
		key:     key,
		addr:    core.SignerAddress(key),
	}

	ctx := context.Background()
	_, err = f.svc.Signup(ctx, core.Sign(key, []byte(WellKnownMessage)))
	require.NoError(t, err)
	_, err = f.svc.RegisterNamespace(ctx, "mock-namespace", core.Sign(key, []byte("mock-namespace")))
	require.NoError(t, err)
	return f
}

func (f *fixture) publish(t *testing.T, version string) (*Receipt, error) {
	t.Helper()
	body := npmArchive(t, "mock-package", version)
	return f.svc.Publish(context.Background(), PublishRequest{
		Namespace:   "mock-namespace",
		Body:        body,
		Signature:   core.Sign(f.key, body),
		ContentType: "application/gzip",
	})
}

func TestPublishReceipt(t *testing.T) {
	f := setup(t, nil)
	body := npmArchive(t, "mock-package", "1.0.0")

	receipt, err := f.svc.Publish(context.Background(), PublishRequest{
		Namespace:   "mock-namespace",
		Body:        body,
		Signature:   core.Sign(f.key, body),
		ContentType: "application/gzip",
	})
	require.NoError(t, err)

	assert.Equal(t, "mock-namespace/mock-package/1.0.0", receipt.ID)
	assert.Equal(t, "mock-package", receipt.Artifact.Package.Name)
	assert.Equal(t, "1.0.0", receipt.Artifact.Package.Version)
	assert.Equal(t, layer.ChecksumKey(body), receipt.Key)
	// The checksum is the SHA-256 of the body, which is also how the
	// memory layer keys blobs.
	assert.Equal(t, layer.ChecksumKey(body), receipt.Checksum)

	// The blob landed in the primary layer.
	ok, err := f.primary.Has(context.Background(), receipt.Key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPublishDuplicateConflicts(t *testing.T) {
	f := setup(t, nil)
	_, err := f.publish(t, "1.0.0")
	require.NoError(t, err)

	before := len(f.store.versions)
	_, err = f.publish(t, "1.0.0")
	assert.ErrorIs(t, err, core.ErrConflict)
	assert.Equal(t, before, len(f.store.versions))
}

func TestPublishNotAheadConflicts(t *testing.T) {
	f := setup(t, nil)
	_, err := f.publish(t, "1.0.1")
	require.NoError(t, err)

	_, err = f.publish(t, "1.0.0")
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestPublishPrereleaseOrdering(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	_, err := f.publish(t, "1.0.1")
	require.NoError(t, err)
	_, err = f.publish(t, "2.0.0-alpha.1")
	require.NoError(t, err)

	latest, err := f.svc.LatestVersion(ctx, "mock-namespace", "mock-package", false)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", latest.Version)

	latest, err = f.svc.LatestVersion(ctx, "mock-namespace", "mock-package", true)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0-alpha.1", latest.Version)

	// A release below the newest prerelease is not ahead.
	_, err = f.publish(t, "1.0.2")
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestPublishDenied(t *testing.T) {
	f := setup(t, nil)
	// Deny the publisher after key generation.
	f.svc.deny[f.addr] = struct{}{}

	_, err := f.publish(t, "1.0.0")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.Empty(t, f.store.versions)

	// Nothing was written to storage.
	body := npmArchive(t, "mock-package", "1.0.0")
	ok, err := f.primary.Has(context.Background(), layer.ChecksumKey(body))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublishAllowList(t *testing.T) {
	other, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	f := setup(t, func(cfg *Config) {
		cfg.Allow = []core.Address{core.SignerAddress(other)}
	})

	_, err = f.publish(t, "1.0.0")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestPublishBodyLimit(t *testing.T) {
	f := setup(t, func(cfg *Config) { cfg.BodyLimit = 16 })
	_, err := f.publish(t, "1.0.0")
	assert.ErrorIs(t, err, core.ErrPayloadTooLarge)
}

func TestPublishContentType(t *testing.T) {
	f := setup(t, nil)
	body := npmArchive(t, "mock-package", "1.0.0")
	_, err := f.svc.Publish(context.Background(), PublishRequest{
		Namespace:   "mock-namespace",
		Body:        body,
		Signature:   core.Sign(f.key, body),
		ContentType: "application/json",
	})
	assert.ErrorIs(t, err, core.ErrUnsupportedMediaType)
}

func TestFetchVerifiesIntegrity(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	receipt, err := f.publish(t, "1.0.0")
	require.NoError(t, err)

	data, err := f.svc.Fetch(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, layer.ChecksumKey(data), receipt.Key)

	// Corrupt the blob in the primary layer; the pointer fetch must
	// refuse to serve it.
	f.primary.Corrupt(receipt.Key, []byte("tampered"))
	_, err = f.svc.Fetch(ctx, receipt.ID)
	assert.ErrorIs(t, err, core.ErrIntegrityFailure)
}

func TestFetchUnknownPointer(t *testing.T) {
	f := setup(t, nil)
	_, err := f.svc.Fetch(context.Background(), "mock-namespace/mock-package/9.9.9")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestYankOnce(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	receipt, err := f.publish(t, "1.0.0")
	require.NoError(t, err)

	reason := []byte("broken build")
	err = f.svc.Yank(ctx, receipt.ID, reason, core.Sign(f.key, reason))
	require.NoError(t, err)

	record, err := f.svc.GetVersion(ctx, receipt.ID)
	require.NoError(t, err)
	require.NotNil(t, record.Yanked)
	assert.Equal(t, "broken build", *record.Yanked)

	err = f.svc.Yank(ctx, receipt.ID, reason, core.Sign(f.key, reason))
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestSignupConflict(t *testing.T) {
	f := setup(t, nil)
	_, err := f.svc.Signup(context.Background(), core.Sign(f.key, []byte(WellKnownMessage)))
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestRegisterConfusableNamespaceConflicts(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	// Identical skeleton, different codepoints: Cyrillic а at index 6.
	confusable := "mock-nаmespace"
	_, err := f.svc.RegisterNamespace(ctx, confusable, core.Sign(f.key, []byte(confusable)))
	assert.ErrorIs(t, err, core.ErrConflict)
}
