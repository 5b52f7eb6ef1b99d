// Package migrations holds the schema of the index database: vector
// collections, their chunks and the scheduler's job history.
package migrations

import "embed"

// FS holds the numbered up and down scripts.
//
//go:embed *.sql
var FS embed.FS
