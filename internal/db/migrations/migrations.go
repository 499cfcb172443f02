// Package migrations embeds the goose SQL migrations so the server
// binary can migrate the schema without migration files on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
