// Package migrations holds the schema of the Postgres sync backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
