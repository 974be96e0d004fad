// Package db embeds the goose migrations for the ledger database.
package db

import "embed"

// Migrations holds the SQL migration files
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that goose reads
const MigrationsDir = "migrations"
