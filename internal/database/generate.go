package database

import _ "embed"

// Schema is the full schema produced by applying every migration.
// Tests apply it directly instead of running golang-migrate.
//
// To regenerate after adding a migration:
//
//	go generate ./internal/database
//
//go:embed schema.sql
var Schema string

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"
