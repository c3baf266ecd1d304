// Package migrations holds the forward-only SQL schema applied by
// `claims-server migrate up`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
