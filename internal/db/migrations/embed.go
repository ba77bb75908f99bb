// Package migrations embeds the goose SQL migrations of tenantd.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
