// Package migrations holds the versioned schema of the SQLite store.
// Files are named NNN_name.up.sql and applied in version order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
