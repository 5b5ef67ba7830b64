// Package migrations embeds the SQLite schema migrations applied by the store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
