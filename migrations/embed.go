// Package migrations embeds the versioned schema for the admin API.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
