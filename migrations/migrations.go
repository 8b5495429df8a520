// Package migrations embeds the goose SQL migrations so tests and tooling
// can apply the schema without a checkout-relative path.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
