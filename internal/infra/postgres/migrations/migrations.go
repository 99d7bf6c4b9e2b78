package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry applied by the migrate command and by tests.
var Migrations = migrate.NewMigrations()
