// Package migrations carries the SQL schema so binaries and tests apply the
// same files.
package migrations

import "embed"

// FS holds every NNN_name.up.sql / NNN_name.down.sql file.
//
//go:embed *.sql
var FS embed.FS
