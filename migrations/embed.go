// Package migrations holds the schema, applied in file-name order by
// db.Migrate.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
