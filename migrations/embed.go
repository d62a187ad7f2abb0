// Package migrations holds the Postgres schema for bookings, users and the
// vehicle availability ledger. The API server applies it on startup when
// MIGRATE_ON_START is set, and the repo tests apply it before they run.
package migrations

import "embed"

// FS is the goose migration set.
//
//go:embed *.sql
var FS embed.FS
