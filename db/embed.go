// Package db embeds the database schema so migrations ship inside the
// binary.
package db

import _ "embed"

// Schema holds the DDL for the catalog, promotion, and order tables.
//
//go:embed migrations/001_schema.sql
var Schema string
