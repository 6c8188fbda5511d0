// Package v1 holds the registry database schema patches. Patch files
// are numbered; the migration collection derives each patch version
// from its filename.
package v1

import (
	"github.com/go-pg/migrations/v8"
)

// Patches is the migration collection the metadata store runs at
// startup.
var Patches = migrations.NewCollection()

func init() {
	Patches.DisableSQLAutodiscover(true)
}
