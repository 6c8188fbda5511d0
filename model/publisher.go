// Package model defines the database rows for the registry metadata:
// publishers, namespaces, members, restrictions, packages and
// versions.
package model

import (
	"time"

	"github.com/LavaMoat/ipfs-registry/core"
)

// Publisher is a registered signing identity, unique by address.
type Publisher struct {
	//lint:ignore U1000 tableName is a convention used by go-pg
	tableName struct{} `pg:"publishers"`

	PublisherID int64     `pg:",pk"`
	Address     []byte    `pg:",notnull,unique"`
	CreatedAt   time.Time `pg:",notnull,default:now()"`
}

// Addr converts the stored address bytes.
func (p *Publisher) Addr() core.Address {
	addr, _ := core.AddressFromBytes(p.Address)
	return addr
}
