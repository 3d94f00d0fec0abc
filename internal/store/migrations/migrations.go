// Package migrations embeds the conversation store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
