// Package migrations embeds the SQL schema for every supported dialect.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite/*.sql goose migrations.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
