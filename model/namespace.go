package model

import (
	"bytes"
	"time"

	"github.com/LavaMoat/ipfs-registry/core"
)

// Namespace groups packages under an owning publisher. Both the name
// and its confusable skeleton are globally unique.
type Namespace struct {
	//lint:ignore U1000 tableName is a convention used by go-pg
	tableName struct{} `pg:"namespaces"`

	NamespaceID int64     `pg:",pk"`
	Name        string    `pg:",notnull,unique"`
	Skeleton    string    `pg:",notnull,unique"`
	OwnerID     int64     `pg:",notnull"`
	CreatedAt   time.Time `pg:",notnull,default:now()"`

	Owner *Publisher `pg:"rel:has-one,fk:owner_id"`

	// Members are loaded alongside the namespace for authorization
	// decisions. The owner is implicit and not present here.
	Members []*Member `pg:"rel:has-many"`
}

// Member is a publisher granted access to a namespace. Administrators
// may add and remove non-administrator members.
type Member struct {
	//lint:ignore U1000 tableName is a convention used by go-pg
	tableName struct{} `pg:"namespace_publishers"`

	NamespaceID   int64 `pg:",pk"`
	PublisherID   int64 `pg:",pk"`
	Administrator bool  `pg:",notnull,use_zero"`

	Publisher *Publisher `pg:"rel:has-one"`

	// Restrictions limit the member to the listed packages. Empty
	// means unrestricted within the namespace.
	Restrictions []*Restriction `pg:"rel:has-many,join_fk:publisher_id"`
}

// Restriction is a per-publisher package allow-list entry.
type Restriction struct {
	//lint:ignore U1000 tableName is a convention used by go-pg
	tableName struct{} `pg:"publisher_restrictions"`

	PublisherID int64 `pg:",pk"`
	PackageID   int64 `pg:",pk"`
}

// IsOwner reports whether the address owns the namespace. The owner
// relation must be loaded.
func (n *Namespace) IsOwner(addr core.Address) bool {
	return n.Owner != nil && bytes.Equal(n.Owner.Address, addr.Bytes())
}

// FindMember returns the membership row for an address, or nil.
func (n *Namespace) FindMember(addr core.Address) *Member {
	for _, m := range n.Members {
		if m.Publisher != nil && bytes.Equal(m.Publisher.Address, addr.Bytes()) {
			return m
		}
	}
	return nil
}

// CanAdministrate reports whether the address is the owner or an
// administrator member.
func (n *Namespace) CanAdministrate(addr core.Address) bool {
	if n.IsOwner(addr) {
		return true
	}
	m := n.FindMember(addr)
	return m != nil && m.Administrator
}

// CanPublish decides whether the address may publish the named package
// in this namespace: the owner always may; a member may when they have
// no restrictions or the package is in their restriction list.
func (n *Namespace) CanPublish(addr core.Address, packageID int64, newPackage bool) bool {
	if n.IsOwner(addr) {
		return true
	}
	m := n.FindMember(addr)
	if m == nil {
		return false
	}
	if len(m.Restrictions) == 0 {
		return true
	}
	if newPackage {
		// A restricted member cannot create packages outside the list.
		return false
	}
	for _, r := range m.Restrictions {
		if r.PackageID == packageID {
			return true
		}
	}
	return false
}
