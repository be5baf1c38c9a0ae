package database

import "embed"

// EmbeddedMigrations, migrations/*.sql dosyalarını binary'ye gömer.
// Kullanım: fs.Sub(database.EmbeddedMigrations, "migrations").
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
