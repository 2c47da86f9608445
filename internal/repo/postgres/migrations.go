package postgres

import "embed"

// Migrations holds the schema, applied at startup by postgres.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsRoot = "migrations"
