// Package migrations embeds the goose SQL migrations for the client store.
// Migrations must stay additive (new tables/indexes only) so a schema bump
// never destroys the upload queue.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
