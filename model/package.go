package model

import "time"

// Package is created implicitly on its first published version. The
// (namespace, skeleton) pair is unique so confusable package names
// collide within a namespace.
type Package struct {
	//lint:ignore U1000 tableName is a convention used by go-pg
	tableName struct{} `pg:"packages"`

	PackageID   int64     `pg:",pk"`
	NamespaceID int64     `pg:",notnull,unique:packages_namespace_skeleton"`
	Name        string    `pg:",notnull"`
	Skeleton    string    `pg:",notnull,unique:packages_namespace_skeleton"`
	CreatedAt   time.Time `pg:",notnull,default:now()"`
}
