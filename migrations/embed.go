// Package migrations embeds the goose SQL migrations for document stores.
package migrations

import "embed"

// FS holds the migration files applied by docstore.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
