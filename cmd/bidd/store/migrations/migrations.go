// Package migrations embeds the bid store schema migrations.
package migrations

import "embed"

// FS holds the SQL migrations, named <version>_<name>.<up|down>.sql.
//
//go:embed *.sql
var FS embed.FS
