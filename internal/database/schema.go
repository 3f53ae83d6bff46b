package database

import _ "embed"

// Schema is the current schema, for tests that skip migrations.
//
//go:embed sqlc/schema.sql
var Schema string
