// Package migrations embeds the SQL schema migrations applied by
// database.RunMigrations at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
