// Package migrations embeds the SQL schema. Every file is idempotent and is
// applied in lexical order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
