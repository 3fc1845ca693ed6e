// Package migrations embeds the SQL schema for the visits ledger.
package migrations

import "embed"

// FS holds the forward and rollback migrations, named NNNNNN_name.{up,down}.sql.
//
//go:embed *.sql
var FS embed.FS
