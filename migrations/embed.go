// Package migrations carries the PostgreSQL schema applied by
// "rendezvous-server migrate up".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
