// Package migrations embeds the SQL schema for the catalog, lunch history and chat tables.
package migrations

import "embed"

// FS holds the embedded golang-migrate files (NNNNNN_name.{up,down}.sql).
//
//go:embed *.sql
var FS embed.FS
