package storage

import (
	"context"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/core"
	"github.com/LavaMoat/ipfs-registry/metrics"
	"github.com/LavaMoat/ipfs-registry/model"
)

// CreateNamespace registers a namespace owned by the publisher behind
// the owner address. The skeleton collision check runs before name
// validation so a visually confusable variant of an existing namespace
// reports a conflict rather than a validation failure.
func (d *Database) CreateNamespace(ctx context.Context, name string, owner core.Address) (*model.Namespace, error) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "namespaces"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	skeleton := core.Skeleton(name)

	taken, err := d.db.ModelContext(ctx, (*model.Namespace)(nil)).
		Where("skeleton = ?", skeleton).
		Exists()
	if err != nil {
		return nil, xerrors.Errorf("checking namespace skeleton: %w", err)
	}
	if taken {
		return nil, xerrors.Errorf("namespace %q: %w", name, core.ErrConflict)
	}

	if err := core.ValidateIdentifier(name); err != nil {
		return nil, err
	}

	publisher, err := d.FindPublisher(ctx, owner)
	if err != nil {
		if xerrors.Is(err, core.ErrNotFound) {
			return nil, xerrors.Errorf("owner %s is not registered: %w", owner, core.ErrUnauthorized)
		}
		return nil, err
	}

	ns := &model.Namespace{
		Name:     name,
		Skeleton: skeleton,
		OwnerID:  publisher.PublisherID,
	}
	if _, err := d.db.ModelContext(ctx, ns).Insert(); err != nil {
		if isConflict(err) {
			return nil, xerrors.Errorf("namespace %q: %w", name, core.ErrConflict)
		}
		return nil, xerrors.Errorf("inserting namespace %q: %w", name, err)
	}

	log.Infow("registered namespace", "name", name, "owner", owner.String())
	return d.FindNamespace(ctx, name)
}

// FindNamespace resolves a namespace by name via its skeleton and
// loads the owner, members and their restrictions.
func (d *Database) FindNamespace(ctx context.Context, name string) (*model.Namespace, error) {
	return findNamespace(ctx, d.db, name)
}

// orm.DB is satisfied by both *pg.DB and *pg.Tx so namespace loading
// can run inside transactions.
func findNamespace(ctx context.Context, db orm.DB, name string) (*model.Namespace, error) {
	ns := new(model.Namespace)
	err := db.ModelContext(ctx, ns).
		Relation("Owner").
		Where("namespace.skeleton = ?", core.Skeleton(name)).
		Select()
	if err != nil {
		if noRows(err) {
			return nil, xerrors.Errorf("namespace %q: %w", name, core.ErrNotFound)
		}
		return nil, xerrors.Errorf("finding namespace %q: %w", name, err)
	}

	if err := db.ModelContext(ctx, &ns.Members).
		Relation("Publisher").
		Where("member.namespace_id = ?", ns.NamespaceID).
		Select(); err != nil {
		return nil, xerrors.Errorf("loading members of %q: %w", name, err)
	}
	for _, m := range ns.Members {
		if err := db.ModelContext(ctx, &m.Restrictions).
			Where("publisher_id = ?", m.PublisherID).
			Select(); err != nil {
			return nil, xerrors.Errorf("loading restrictions of member %d: %w", m.PublisherID, err)
		}
	}
	return ns, nil
}

// AddMember adds a publisher to a namespace. The signer must be the
// owner; administrators may add non-administrator members only. An
// optional package restriction limits the new member to that package.
func (d *Database) AddMember(ctx context.Context, namespace string, signer, target core.Address, administrator bool, packageRestriction string) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "namespace_publishers"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	return d.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		ns, err := findNamespace(ctx, tx, namespace)
		if err != nil {
			return err
		}

		if ns.IsOwner(target) {
			return xerrors.Errorf("owner of %q cannot be added: %w", namespace, core.ErrUnauthorized)
		}
		if administrator && !ns.IsOwner(signer) {
			return xerrors.Errorf("only the owner may add administrators: %w", core.ErrUnauthorized)
		}
		if !ns.CanAdministrate(signer) {
			return xerrors.Errorf("signer %s may not administrate %q: %w", signer, namespace, core.ErrUnauthorized)
		}
		if ns.FindMember(target) != nil {
			return xerrors.Errorf("%s is already a member of %q: %w", target, namespace, core.ErrConflict)
		}

		publisher, err := findPublisherTx(tx, target)
		if err != nil {
			return err
		}

		member := &model.Member{
			NamespaceID:   ns.NamespaceID,
			PublisherID:   publisher.PublisherID,
			Administrator: administrator,
		}
		if _, err := tx.ModelContext(ctx, member).Insert(); err != nil {
			if isConflict(err) {
				return xerrors.Errorf("%s is already a member of %q: %w", target, namespace, core.ErrConflict)
			}
			return xerrors.Errorf("inserting member: %w", err)
		}

		if packageRestriction != "" {
			pkg, err := findPackageTx(ctx, tx, ns.NamespaceID, packageRestriction)
			if err != nil {
				return err
			}
			restriction := &model.Restriction{
				PublisherID: publisher.PublisherID,
				PackageID:   pkg.PackageID,
			}
			if _, err := tx.ModelContext(ctx, restriction).Insert(); err != nil {
				return xerrors.Errorf("inserting restriction: %w", err)
			}
		}

		log.Infow("added member", "namespace", namespace, "member", target.String(), "administrator", administrator)
		return nil
	})
}

// RemoveMember removes a publisher from a namespace along with their
// restrictions. The owner cannot be removed; only the owner may remove
// administrators.
func (d *Database) RemoveMember(ctx context.Context, namespace string, signer, target core.Address) error {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Table, "namespace_publishers"))
	stop := metrics.Timer(ctx, metrics.PersistDuration)
	defer stop()

	return d.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		ns, err := findNamespace(ctx, tx, namespace)
		if err != nil {
			return err
		}

		if !ns.CanAdministrate(signer) {
			return xerrors.Errorf("signer %s may not administrate %q: %w", signer, namespace, core.ErrUnauthorized)
		}
		if ns.IsOwner(target) {
			return xerrors.Errorf("owner of %q cannot be removed: %w", namespace, core.ErrUnauthorized)
		}
		member := ns.FindMember(target)
		if member == nil {
			return xerrors.Errorf("%s is not a member of %q: %w", target, namespace, core.ErrNotFound)
		}
		if member.Administrator && !ns.IsOwner(signer) {
			return xerrors.Errorf("only the owner may remove administrators: %w", core.ErrUnauthorized)
		}

		if _, err := tx.ModelContext(ctx, (*model.Restriction)(nil)).
			Where("publisher_id = ?", member.PublisherID).
			Delete(); err != nil {
			return xerrors.Errorf("deleting restrictions: %w", err)
		}
		if _, err := tx.ModelContext(ctx, (*model.Member)(nil)).
			Where("namespace_id = ? AND publisher_id = ?", ns.NamespaceID, member.PublisherID).
			Delete(); err != nil {
			return xerrors.Errorf("deleting member: %w", err)
		}

		log.Infow("removed member", "namespace", namespace, "member", target.String())
		return nil
	})
}

// GrantAccess adds a package to an existing member's restriction list.
func (d *Database) GrantAccess(ctx context.Context, namespace, packageName string, signer, target core.Address) error {
	return d.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		member, pkg, err := accessTarget(ctx, tx, namespace, packageName, signer, target)
		if err != nil {
			return err
		}

		restriction := &model.Restriction{
			PublisherID: member.PublisherID,
			PackageID:   pkg.PackageID,
		}
		if _, err := tx.ModelContext(ctx, restriction).Insert(); err != nil {
			if isConflict(err) {
				return xerrors.Errorf("%s already has access to %q: %w", target, packageName, core.ErrConflict)
			}
			return xerrors.Errorf("inserting restriction: %w", err)
		}
		return nil
	})
}

// RevokeAccess removes a package from an existing member's restriction
// list.
func (d *Database) RevokeAccess(ctx context.Context, namespace, packageName string, signer, target core.Address) error {
	return d.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		member, pkg, err := accessTarget(ctx, tx, namespace, packageName, signer, target)
		if err != nil {
			return err
		}

		res, err := tx.ModelContext(ctx, (*model.Restriction)(nil)).
			Where("publisher_id = ? AND package_id = ?", member.PublisherID, pkg.PackageID).
			Delete()
		if err != nil {
			return xerrors.Errorf("deleting restriction: %w", err)
		}
		if res.RowsAffected() == 0 {
			return xerrors.Errorf("%s has no access entry for %q: %w", target, packageName, core.ErrNotFound)
		}
		return nil
	})
}

func accessTarget(ctx context.Context, tx *pg.Tx, namespace, packageName string, signer, target core.Address) (*model.Member, *model.Package, error) {
	ns, err := findNamespace(ctx, tx, namespace)
	if err != nil {
		return nil, nil, err
	}
	if ns.IsOwner(target) {
		return nil, nil, xerrors.Errorf("access rights do not apply to the owner: %w", core.ErrUnauthorized)
	}
	if !ns.CanAdministrate(signer) {
		return nil, nil, xerrors.Errorf("signer %s may not administrate %q: %w", signer, namespace, core.ErrUnauthorized)
	}
	member := ns.FindMember(target)
	if member == nil {
		return nil, nil, xerrors.Errorf("%s is not a member of %q: %w", target, namespace, core.ErrUnauthorized)
	}
	pkg, err := findPackageTx(ctx, tx, ns.NamespaceID, packageName)
	if err != nil {
		return nil, nil, err
	}
	return member, pkg, nil
}
