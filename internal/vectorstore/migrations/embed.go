// Package migrations embeds the SQL schema of the sqlite vector store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
