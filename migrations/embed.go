// Package migrations embeds the schema migration files so binaries can run
// them at startup without a deploy-time copy step.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
