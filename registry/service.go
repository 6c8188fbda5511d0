package registry

import (
	"context"
	"crypto/sha256"

	"github.com/Masterminds/semver/v3"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/archive"
	"github.com/LavaMoat/ipfs-registry/core"
	"github.com/LavaMoat/ipfs-registry/layer"
	"github.com/LavaMoat/ipfs-registry/model"
	"github.com/LavaMoat/ipfs-registry/storage"
)

var log = logging.Logger("registry/service")

// MetadataStore is the transactional metadata interface the service
// depends on, implemented by storage.Database.
type MetadataStore interface {
	CreatePublisher(ctx context.Context, addr core.Address) (*model.Publisher, error)
	CreateNamespace(ctx context.Context, name string, owner core.Address) (*model.Namespace, error)
	AddMember(ctx context.Context, namespace string, signer, target core.Address, administrator bool, packageRestriction string) error
	RemoveMember(ctx context.Context, namespace string, signer, target core.Address) error
	GrantAccess(ctx context.Context, namespace, packageName string, signer, target core.Address) error
	RevokeAccess(ctx context.Context, namespace, packageName string, signer, target core.Address) error
	AuthorizePublish(ctx context.Context, namespace string, signer core.Address, packageName string) (*model.Namespace, *model.Publisher, error)
	InsertVersion(ctx context.Context, ns *model.Namespace, publisher *model.Publisher, params storage.VersionParams) (*model.Version, error)
	FindVersion(ctx context.Context, namespace, packageName string, version *semver.Version) (*model.Version, error)
	FindVersionByPointerID(ctx context.Context, pointerID string) (*model.Version, error)
	FindVersionByContentID(ctx context.Context, contentID string) (*model.Version, error)
	YankVersion(ctx context.Context, versionID int64, signer core.Address, reason string) error
	ListPackages(ctx context.Context, namespace string, pager storage.Pager, latest bool) ([]*storage.PackageEntry, int, error)
	ListVersions(ctx context.Context, namespace, packageName string, rng *semver.Constraints, pager storage.Pager) ([]*model.Version, int, error)
	LatestVersion(ctx context.Context, namespace, packageName string, includePrerelease bool) (*model.Version, error)
}

var _ MetadataStore = (*storage.Database)(nil)

// Hooks receives notifications after successful operations. Delivery
// is asynchronous and best-effort.
type Hooks interface {
	PackagePublished(receipt *Receipt)
	PackageFetched(id string)
}

// Config is the read-only service configuration fixed at startup.
type Config struct {
	// Kind selects the archive introspection variant.
	Kind archive.Kind

	// Mime is the required content type for uploads.
	Mime string

	// BodyLimit caps the archive size in bytes.
	BodyLimit int64

	// Allow, when non-empty, restricts publishing to the listed
	// addresses. Deny always wins over allow.
	Allow []core.Address
	Deny  []core.Address
}

// Service wires the metadata store, the storage mirror and the
// configured policy into the registry operations.
type Service struct {
	store  MetadataStore
	mirror *layer.Mirror
	cfg    Config
	allow  map[core.Address]struct{}
	deny   map[core.Address]struct{}
	hooks  Hooks
}

// NewService builds a service. hooks may be nil.
func NewService(store MetadataStore, mirror *layer.Mirror, cfg Config, hooks Hooks) *Service {
	allow := make(map[core.Address]struct{}, len(cfg.Allow))
	for _, a := range cfg.Allow {
		allow[a] = struct{}{}
	}
	deny := make(map[core.Address]struct{}, len(cfg.Deny))
	for _, a := range cfg.Deny {
		deny[a] = struct{}{}
	}
	return &Service{
		store:  store,
		mirror: mirror,
		cfg:    cfg,
		allow:  allow,
		deny:   deny,
		hooks:  hooks,
	}
}

// Mime returns the configured archive content type.
func (s *Service) Mime() string {
	return s.cfg.Mime
}

// BodyLimit returns the configured upload cap in bytes.
func (s *Service) BodyLimit() int64 {
	return s.cfg.BodyLimit
}

// admitted applies the global allow and deny lists.
func (s *Service) admitted(addr core.Address) bool {
	if _, denied := s.deny[addr]; denied {
		return false
	}
	if len(s.allow) > 0 {
		_, ok := s.allow[addr]
		return ok
	}
	return true
}

// Signup registers the publisher behind a signature over the well
// known message.
func (s *Service) Signup(ctx context.Context, sig core.Signature) (*PublisherRecord, error) {
	addr, err := core.RecoverAddress(sig, []byte(WellKnownMessage))
	if err != nil {
		return nil, xerrors.Errorf("recovering signup signer: %w", core.ErrUnauthorized)
	}
	publisher, err := s.store.CreatePublisher(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &PublisherRecord{
		Address:   publisher.Addr().String(),
		CreatedAt: publisher.CreatedAt,
	}, nil
}

// RegisterNamespace creates a namespace owned by the signer of the
// namespace name bytes.
func (s *Service) RegisterNamespace(ctx context.Context, name string, sig core.Signature) (*NamespaceRecord, error) {
	addr, err := core.RecoverAddress(sig, []byte(name))
	if err != nil {
		return nil, xerrors.Errorf("recovering namespace signer: %w", core.ErrUnauthorized)
	}
	ns, err := s.store.CreateNamespace(ctx, name, addr)
	if err != nil {
		return nil, err
	}
	return &NamespaceRecord{
		Name:      ns.Name,
		Owner:     ns.Owner.Addr().String(),
		CreatedAt: ns.CreatedAt,
	}, nil
}

// AddUser adds a member to a namespace. The signature covers the raw
// target address string as it appeared in the request.
func (s *Service) AddUser(ctx context.Context, namespace, rawTarget string, administrator bool, packageRestriction string, sig core.Signature) error {
	signer, err := core.RecoverAddress(sig, []byte(rawTarget))
	if err != nil {
		return xerrors.Errorf("recovering signer: %w", core.ErrUnauthorized)
	}
	target, err := core.ParseAddress(rawTarget)
	if err != nil {
		return xerrors.Errorf("target address: %w", core.ErrBadRequest)
	}
	return s.store.AddMember(ctx, namespace, signer, target, administrator, packageRestriction)
}

// RemoveUser removes a member from a namespace, same signature
// contract as AddUser.
func (s *Service) RemoveUser(ctx context.Context, namespace, rawTarget string, sig core.Signature) error {
	signer, err := core.RecoverAddress(sig, []byte(rawTarget))
	if err != nil {
		return xerrors.Errorf("recovering signer: %w", core.ErrUnauthorized)
	}
	target, err := core.ParseAddress(rawTarget)
	if err != nil {
		return xerrors.Errorf("target address: %w", core.ErrBadRequest)
	}
	return s.store.RemoveMember(ctx, namespace, signer, target)
}

// PublishRequest is the typed publish input.
type PublishRequest struct {
	Namespace   string
	Body        []byte
	Signature   core.Signature
	ContentType string
}

// Publish runs the pipeline: verify signature, apply the allow and deny
// lists, introspect the archive, authorize the signer for the extracted
// package, checksum, fan the blob out to storage and commit the version
// row.
// If the metadata commit fails after the storage write the orphan blob
// is left behind; layers are content-addressed so it is a harmless
// duplicate.
func (s *Service) Publish(ctx context.Context, req PublishRequest) (*Receipt, error) {
	if s.cfg.BodyLimit > 0 && int64(len(req.Body)) > s.cfg.BodyLimit {
		return nil, xerrors.Errorf("archive of %d bytes exceeds limit %d: %w", len(req.Body), s.cfg.BodyLimit, core.ErrPayloadTooLarge)
	}
	if req.ContentType != s.cfg.Mime {
		return nil, xerrors.Errorf("content type %q, want %q: %w", req.ContentType, s.cfg.Mime, core.ErrUnsupportedMediaType)
	}

	signer, err := core.RecoverAddress(req.Signature, req.Body)
	if err != nil {
		return nil, xerrors.Errorf("recovering publish signer: %w", core.ErrUnauthorized)
	}
	if !s.admitted(signer) {
		return nil, xerrors.Errorf("address %s is not admitted: %w", signer, core.ErrUnauthorized)
	}

	if err := core.ValidateIdentifier(req.Namespace); err != nil {
		return nil, err
	}

	descriptor, err := archive.Introspect(s.cfg.Kind, req.Body)
	if err != nil {
		return nil, xerrors.Errorf("introspecting archive: %v: %w", err, core.ErrBadRequest)
	}
	if err := core.ValidateIdentifier(descriptor.Name); err != nil {
		return nil, err
	}

	ns, publisher, err := s.store.AuthorizePublish(ctx, req.Namespace, signer, descriptor.Name)
	if err != nil {
		return nil, err
	}

	checksum := sha256.Sum256(req.Body)
	pointerID := core.PointerID(ns.Name, descriptor.Name, descriptor.Version)

	contentID, err := s.mirror.Put(ctx, req.Body)
	if err != nil {
		return nil, err
	}

	version, err := s.store.InsertVersion(ctx, ns, publisher, storage.VersionParams{
		PackageName: descriptor.Name,
		Version:     descriptor.Version,
		ContentID:   contentID,
		PointerID:   pointerID,
		Signature:   req.Signature,
		Checksum:    checksum[:],
		Meta:        descriptor.Meta,
	})
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		ID: core.PackageKey{
			Namespace: ns.Name,
			Package:   descriptor.Name,
			Version:   descriptor.Version,
		}.String(),
		Artifact: Artifact{
			Namespace: ns.Name,
			Package: PackageMeta{
				Name:    descriptor.Name,
				Version: descriptor.Version.String(),
			},
		},
		Key:      contentID,
		Checksum: versionRecord(version).Checksum,
	}

	log.Infow("published",
		"id", receipt.ID,
		"key", contentID,
		"publisher", signer.String())

	if s.hooks != nil {
		s.hooks.PackagePublished(receipt)
	}
	return receipt, nil
}

// GetVersion returns version metadata for a pointer or content
// reference.
func (s *Service) GetVersion(ctx context.Context, id string) (*VersionRecord, error) {
	row, err := s.resolveVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	return versionRecord(row), nil
}

// Yank marks the referenced version as yanked. The signature covers
// the reason bytes, which may be empty.
func (s *Service) Yank(ctx context.Context, id string, reason []byte, sig core.Signature) error {
	signer, err := core.RecoverAddress(sig, reason)
	if err != nil {
		return xerrors.Errorf("recovering yank signer: %w", core.ErrUnauthorized)
	}
	row, err := s.resolveVersion(ctx, id)
	if err != nil {
		return err
	}
	return s.store.YankVersion(ctx, row.VersionID, signer, string(reason))
}

func (s *Service) resolveVersion(ctx context.Context, id string) (*model.Version, error) {
	key, err := core.ParsePackageKey(id)
	if err != nil {
		return nil, err
	}
	if key.IsContent() {
		return s.store.FindVersionByContentID(ctx, core.IPFSPrefix+key.CID)
	}
	return s.store.FindVersion(ctx, key.Namespace, key.Package, key.Version)
}

// ListPackages returns a page of a namespace's packages.
func (s *Service) ListPackages(ctx context.Context, namespace string, pager storage.Pager, latest bool) (*PackageListing, error) {
	entries, total, err := s.store.ListPackages(ctx, namespace, pager, latest)
	if err != nil {
		return nil, err
	}
	out := &PackageListing{Total: total, Packages: make([]PackageRecord, 0, len(entries))}
	for _, entry := range entries {
		record := PackageRecord{
			Name:      entry.Package.Name,
			CreatedAt: entry.Package.CreatedAt,
		}
		if entry.Latest != nil {
			record.Latest = versionRecord(entry.Latest)
		}
		out.Packages = append(out.Packages, record)
	}
	return out, nil
}

// ListVersions returns a page of a package's versions, optionally
// filtered by a semver range expression.
func (s *Service) ListVersions(ctx context.Context, namespace, packageName, rangeExpr string, pager storage.Pager) (*VersionListing, error) {
	var rng *semver.Constraints
	if rangeExpr != "" {
		var err error
		rng, err = semver.NewConstraint(rangeExpr)
		if err != nil {
			return nil, xerrors.Errorf("range %q: %w", rangeExpr, core.ErrBadRequest)
		}
	}
	rows, total, err := s.store.ListVersions(ctx, namespace, packageName, rng, pager)
	if err != nil {
		return nil, err
	}
	out := &VersionListing{Total: total, Versions: make([]VersionRecord, 0, len(rows))}
	for _, row := range rows {
		out.Versions = append(out.Versions, *versionRecord(row))
	}
	return out, nil
}

// LatestVersion returns the newest version of a package.
func (s *Service) LatestVersion(ctx context.Context, namespace, packageName string, includePrerelease bool) (*VersionRecord, error) {
	row, err := s.store.LatestVersion(ctx, namespace, packageName, includePrerelease)
	if err != nil {
		return nil, err
	}
	return versionRecord(row), nil
}
