// Package migrations embeds the PostgreSQL schema of the post, search and media stores.
package migrations

import "embed"

// FS holds *_up.sql and *_down.sql files applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
