package migrations

import "embed"

// FS contains the embedded SQLite migrations for the DSN cache.
//
//go:embed *.sql
var FS embed.FS
