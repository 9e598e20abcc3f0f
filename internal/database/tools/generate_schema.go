package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"starbase-go/internal/database"
	"starbase-go/internal/database/migrations"
)

// generate_schema rebuilds schema.sql from the embedded migrations.
// With -check it only reports whether the committed file is stale.
func main() {
	out := flag.String("o", filepath.Join("internal", "database", "schema.sql"), "output path, relative to the module root")
	check := flag.Bool("check", false, "fail if the output file differs instead of writing it")
	flag.Parse()

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		fail("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.MigrateUp(db); err != nil {
		fail("migrating: %v", err)
	}

	schema, err := extractSchema(db)
	if err != nil {
		fail("extracting schema: %v", err)
	}

	if *check {
		current, err := os.ReadFile(*out)
		if err != nil {
			fail("reading %s: %v", *out, err)
		}
		if string(current) != schema {
			fail("%s is stale; run go generate ./internal/database", *out)
		}
		fmt.Printf("%s is up to date\n", *out)
		return
	}

	if err := os.WriteFile(*out, []byte(schema), 0644); err != nil {
		fail("writing %s: %v", *out, err)
	}
	fmt.Printf("generated %s from migrations\n", *out)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// extractSchema returns the CREATE statements of every table and index, tables first,
// leaving out SQLite internals and the golang-migrate bookkeeping table.
func extractSchema(db *sql.DB) (string, error) {
	query := `
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND name NOT LIKE 'sqlite_%'
		  AND name != 'schema_migrations'
		  AND tbl_name != 'schema_migrations'
		ORDER BY
		  CASE type
		    WHEN 'table' THEN 1
		    WHEN 'index' THEN 2
		  END,
		  name
	`

	rows, err := db.Query(query)
	if err != nil {
		return "", fmt.Errorf("listing schema objects: %w", err)
	}
	defer rows.Close()

	var schema strings.Builder
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scanning schema object: %w", err)
		}
		schema.WriteString(stmt)
		schema.WriteString("\n\n")
	}

	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("listing schema objects: %w", err)
	}

	header := `-- This file is auto-generated from migration files.
-- DO NOT EDIT MANUALLY. Run 'go generate ./internal/database' to regenerate.
-- Source: internal/database/migrations/files/*.sql

`
	return header + schema.String(), nil
}
