package migrations

import "embed"

// Embedded journal schema, one directory per SQL dialect.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
