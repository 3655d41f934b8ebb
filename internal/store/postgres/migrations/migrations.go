// Package migrations embeds the goose SQL migration files so the migrate
// package (and anything else that needs the raw filesystem, e.g. tests that
// spin up a throwaway schema) can reach them without relying on a path
// relative to the working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
