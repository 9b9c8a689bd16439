// Package migrations embeds the schema files applied by cmd/migrate, so the
// binary carries its own schema and needs no working-directory layout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
