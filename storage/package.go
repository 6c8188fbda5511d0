package storage

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/core"
	"github.com/LavaMoat/ipfs-registry/metrics"
	"github.com/LavaMoat/ipfs-registry/model"
)

// Pager bounds and orders a listing.
type Pager struct {
	Limit  int
	Offset int
	// Descending reverses the deterministic sort order.
	Descending bool
}

func (p Pager) limit() int {
	if p.Limit <= 0 || p.Limit > 100 {
		return 25
	}
	return p.Limit
}

func findPackageTx(ctx context.Context, db orm.DB, namespaceID int64, name string) (*model.Package, error) {
	pkg := new(model.Package)
	err := db.ModelContext(ctx, pkg).
		Where("namespace_id = ? AND skeleton = ?", namespaceID, core.Skeleton(name)).
		Select()
	if err != nil {
		if noRows(err) {
			return nil, xerrors.Errorf("package %q: %w", name, core.ErrNotFound)
		}
		return nil, xerrors.Errorf("finding package %q: %w", name, err)
	}
	return pkg, nil
}

// AuthorizePublish decides whether the signer may publish the named
// package in the namespace: the owner always may; a member may when
// unrestricted or when the package is on their restriction list. A
// restricted member cannot create new packages.
func (d *Database) AuthorizePublish(ctx context.Context, namespace string, signer core.Address, packageName string) (*model.Namespace, *model.Publisher, error) {
	ns, err := d.FindNamespace(ctx, namespace)
	if err != nil {
		return nil, nil, err
	}

	publisher, err := d.FindPublisher(ctx, signer)
	if err != nil {
		if xerrors.Is(err, core.ErrNotFound) {
			return nil, nil, xerrors.Errorf("signer %s is not registered: %w", signer, core.ErrUnauthorized)
		}
		return nil, nil, err
	}

	var packageID int64
	newPackage := false
	pkg, err := findPackageTx(ctx, d.db, ns.NamespaceID, packageName)
	switch {
	case err == nil:
		packageID = pkg.PackageID
	case xerrors.Is(err, core.ErrNotFound):
		newPackage = true
	default:
		return nil, nil, err
	}

	if !ns.CanPublish(signer, packageID, newPackage) {
		return nil, nil, xerrors.Errorf("signer %s may not publish %q in %q: %w", signer, packageName, namespace, core.ErrUnauthorized)
	}
	return ns, publisher, nil
}

// VersionParams carries everything InsertVersion persists.
type VersionParams struct {
	PackageName string
	Version     *semver.Version
	ContentID   string
	PointerID   string
	Signature   core.Signature
	Checksum    []byte
	Meta        []byte
}

// InsertVersion records a published version in one transaction: the
// package row is created on first use, the existing versions of the
// package are locked, and the insert is rejected unless the new
// version is strictly ahead of every existing one under
// semver-with-prerelease ordering.
func (d *Database) InsertVersion(ctx context.Context, ns *model.Namespace, publisher *model.Publisher, params VersionParams) (*model.Version, error) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "versions"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	version := new(model.Version)
	err := d.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		pkg, err := findOrCreatePackage(ctx, tx, ns.NamespaceID, params.PackageName)
		if err != nil {
			return err
		}

		// Lock the package's versions to linearize racing publishes;
		// the unique constraint backstops anything the lock misses.
		var existing []*model.Version
		if err := tx.ModelContext(ctx, &existing).
			Column("major", "minor", "patch", "pre", "build").
			Where("package_id = ?", pkg.PackageID).
			For("UPDATE").
			Select(); err != nil && !noRows(err) {
			return xerrors.Errorf("locking versions of %q: %w", params.PackageName, err)
		}

		for _, row := range existing {
			if !params.Version.GreaterThan(row.Semver()) {
				return xerrors.Errorf("version %s is not ahead of %s: %w",
					params.Version, row.Semver(), core.ErrConflict)
			}
		}

		version = &model.Version{
			PackageID:   pkg.PackageID,
			PublisherID: publisher.PublisherID,
			ContentID:   params.ContentID,
			PointerID:   params.PointerID,
			Signature:   params.Signature.Bytes(),
			Checksum:    params.Checksum,
			Package:     string(params.Meta),
		}
		version.SetSemver(params.Version)

		if _, err := tx.ModelContext(ctx, version).Insert(); err != nil {
			if isConflict(err) {
				return xerrors.Errorf("version %s of %q exists: %w", params.Version, params.PackageName, core.ErrConflict)
			}
			return xerrors.Errorf("inserting version: %w", err)
		}
		return tx.ModelContext(ctx, version).WherePK().Select()
	})
	if err != nil {
		return nil, err
	}

	log.Infow("inserted version",
		"namespace", ns.Name,
		"package", params.PackageName,
		"version", params.Version.String(),
		"content_id", params.ContentID)
	return version, nil
}

func findOrCreatePackage(ctx context.Context, tx *pg.Tx, namespaceID int64, name string) (*model.Package, error) {
	pkg, err := findPackageTx(ctx, tx, namespaceID, name)
	if err == nil {
		return pkg, nil
	}
	if !xerrors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	pkg = &model.Package{
		NamespaceID: namespaceID,
		Name:        name,
		Skeleton:    core.Skeleton(name),
	}
	if _, err := tx.ModelContext(ctx, pkg).Insert(); err != nil {
		if isConflict(err) {
			// A confusable package name already occupies the skeleton.
			return nil, xerrors.Errorf("package %q: %w", name, core.ErrConflict)
		}
		return nil, xerrors.Errorf("inserting package %q: %w", name, err)
	}
	return pkg, nil
}

// FindVersion resolves a pointer reference to its version row.
func (d *Database) FindVersion(ctx context.Context, namespace, packageName string, version *semver.Version) (*model.Version, error) {
	ns, err := d.FindNamespace(ctx, namespace)
	if err != nil {
		return nil, err
	}
	pkg, err := findPackageTx(ctx, d.db, ns.NamespaceID, packageName)
	if err != nil {
		return nil, err
	}

	row := new(model.Version)
	err = d.db.ModelContext(ctx, row).
		Relation("Pkg").
		Relation("Publisher").
		Where("version.package_id = ?", pkg.PackageID).
		Where("version.major = ? AND version.minor = ? AND version.patch = ? AND version.pre = ? AND version.build = ?",
			int64(version.Major()), int64(version.Minor()), int64(version.Patch()),
			version.Prerelease(), version.Metadata()).
		Select()
	if err != nil {
		if noRows(err) {
			return nil, xerrors.Errorf("version %s of %s/%s: %w", version, namespace, packageName, core.ErrNotFound)
		}
		return nil, xerrors.Errorf("finding version: %w", err)
	}
	return row, nil
}

// FindVersionByPointerID resolves the Keccak-256 pointer id.
func (d *Database) FindVersionByPointerID(ctx context.Context, pointerID string) (*model.Version, error) {
	return d.findVersionBy(ctx, "pointer_id = ?", pointerID)
}

// FindVersionByContentID resolves a storage key to its version row.
func (d *Database) FindVersionByContentID(ctx context.Context, contentID string) (*model.Version, error) {
	return d.findVersionBy(ctx, "content_id = ?", contentID)
}

func (d *Database) findVersionBy(ctx context.Context, cond string, arg string) (*model.Version, error) {
	row := new(model.Version)
	err := d.db.ModelContext(ctx, row).
		Relation("Pkg").
		Relation("Publisher").
		Where("version."+cond, arg).
		Select()
	if err != nil {
		if noRows(err) {
			return nil, xerrors.Errorf("version %s: %w", arg, core.ErrNotFound)
		}
		return nil, xerrors.Errorf("finding version %s: %w", arg, err)
	}
	return row, nil
}

// YankVersion marks a version as yanked with a reason. The signer must
// be authorized as for publishing; a version can be yanked once.
func (d *Database) YankVersion(ctx context.Context, versionID int64, signer core.Address, reason string) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "versions"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	return d.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		row := new(model.Version)
		err := tx.ModelContext(ctx, row).
			Relation("Pkg").
			Where("version.version_id = ?", versionID).
			For("UPDATE OF version").
			Select()
		if err != nil {
			if noRows(err) {
				return xerrors.Errorf("version %d: %w", versionID, core.ErrNotFound)
			}
			return xerrors.Errorf("finding version %d: %w", versionID, err)
		}

		ns := new(model.Namespace)
		if err := tx.ModelContext(ctx, ns).
			Relation("Owner").
			Where("namespace.namespace_id = ?", row.Pkg.NamespaceID).
			Select(); err != nil {
			return xerrors.Errorf("finding namespace %d: %w", row.Pkg.NamespaceID, err)
		}
		if err := tx.ModelContext(ctx, &ns.Members).
			Relation("Publisher").
			Where("member.namespace_id = ?", ns.NamespaceID).
			Select(); err != nil {
			return xerrors.Errorf("loading members: %w", err)
		}
		for _, m := range ns.Members {
			if err := tx.ModelContext(ctx, &m.Restrictions).
				Where("publisher_id = ?", m.PublisherID).
				Select(); err != nil {
				return xerrors.Errorf("loading restrictions: %w", err)
			}
		}

		if !ns.CanPublish(signer, row.PackageID, false) {
			return xerrors.Errorf("signer %s may not yank %q: %w", signer, row.Pkg.Name, core.ErrUnauthorized)
		}

		if row.IsYanked() {
			return xerrors.Errorf("version %d already yanked: %w", versionID, core.ErrConflict)
		}

		res, err := tx.ModelContext(ctx, (*model.Version)(nil)).
			Set("yanked = ?", reason).
			Where("version_id = ? AND yanked IS NULL", versionID).
			Update()
		if err != nil {
			return xerrors.Errorf("yanking version %d: %w", versionID, err)
		}
		if res.RowsAffected() == 0 {
			return xerrors.Errorf("version %d already yanked: %w", versionID, core.ErrConflict)
		}

		log.Infow("yanked version", "version_id", versionID, "signer", signer.String())
		return nil
	})
}

// PackageEntry is a listed package, optionally with its latest
// non-prerelease version.
type PackageEntry struct {
	Package *model.Package
	Latest  *model.Version
}

// ListPackages returns a page of a namespace's packages ordered by
// creation time then id. With latest set, each entry carries the
// package's latest version.
func (d *Database) ListPackages(ctx context.Context, namespace string, pager Pager, latest bool) ([]*PackageEntry, int, error) {
	ns, err := d.FindNamespace(ctx, namespace)
	if err != nil {
		return nil, 0, err
	}

	order := "ASC"
	if pager.Descending {
		order = "DESC"
	}
	var packages []*model.Package
	count, err := d.db.ModelContext(ctx, &packages).
		Where("namespace_id = ?", ns.NamespaceID).
		OrderExpr("created_at " + order + ", package_id " + order).
		Limit(pager.limit()).
		Offset(pager.Offset).
		SelectAndCount()
	if err != nil {
		return nil, 0, xerrors.Errorf("listing packages of %q: %w", namespace, err)
	}

	entries := make([]*PackageEntry, 0, len(packages))
	for _, pkg := range packages {
		entry := &PackageEntry{Package: pkg}
		if latest {
			entry.Latest, err = d.latestOf(ctx, pkg.PackageID, false)
			if err != nil && !xerrors.Is(err, core.ErrNotFound) {
				return nil, 0, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, count, nil
}

// ListVersions returns a page of a package's versions ordered by major,
// minor and patch, with prereleases sorting before their release.
// Prerelease tags compare as plain text, so alpha.10 sorts before
// alpha.2. An optional range constraint filters versions before
// pagination.
func (d *Database) ListVersions(ctx context.Context, namespace, packageName string, rng *semver.Constraints, pager Pager) ([]*model.Version, int, error) {
	ns, err := d.FindNamespace(ctx, namespace)
	if err != nil {
		return nil, 0, err
	}
	pkg, err := findPackageTx(ctx, d.db, ns.NamespaceID, packageName)
	if err != nil {
		return nil, 0, err
	}

	// Ordering: release rows (pre = '') sort after their prereleases;
	// build metadata is a deterministic tiebreaker, not a semver rank.
	order := "ASC"
	if pager.Descending {
		order = "DESC"
	}
	var rows []*model.Version
	if err := d.db.ModelContext(ctx, &rows).
		Where("package_id = ?", pkg.PackageID).
		OrderExpr("major " + order + ", minor " + order + ", patch " + order +
			", (pre = '') " + order + ", pre " + order + ", build " + order).
		Select(); err != nil {
		return nil, 0, xerrors.Errorf("listing versions of %q: %w", packageName, err)
	}

	if rng != nil {
		filtered := rows[:0]
		for _, row := range rows {
			if rng.Check(row.Semver()) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	total := len(rows)
	start := pager.Offset
	if start > total {
		start = total
	}
	end := start + pager.limit()
	if end > total {
		end = total
	}
	return rows[start:end], total, nil
}

// LatestVersion returns the package's newest version under
// semver-with-prerelease ordering, or the newest release when
// prereleases are excluded.
func (d *Database) LatestVersion(ctx context.Context, namespace, packageName string, includePrerelease bool) (*model.Version, error) {
	ns, err := d.FindNamespace(ctx, namespace)
	if err != nil {
		return nil, err
	}
	pkg, err := findPackageTx(ctx, d.db, ns.NamespaceID, packageName)
	if err != nil {
		return nil, err
	}
	return d.latestOf(ctx, pkg.PackageID, includePrerelease)
}

func (d *Database) latestOf(ctx context.Context, packageID int64, includePrerelease bool) (*model.Version, error) {
	var rows []*model.Version
	q := d.db.ModelContext(ctx, &rows).
		Where("package_id = ?", packageID)
	if !includePrerelease {
		q = q.Where("pre = ''")
	}
	if err := q.Select(); err != nil {
		return nil, xerrors.Errorf("loading versions of package %d: %w", packageID, err)
	}
	if len(rows) == 0 {
		return nil, xerrors.Errorf("package %d has no versions: %w", packageID, core.ErrNotFound)
	}

	latest := rows[0]
	for _, row := range rows[1:] {
		if row.Semver().GreaterThan(latest.Semver()) {
			latest = row
		}
	}
	return latest, nil
}
