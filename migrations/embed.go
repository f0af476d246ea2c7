// Package migrations embeds SQL migration files into the binary.
//
// This lets the hub apply schema migrations without shipping SQL files
// alongside the executable - they are compiled in via go:embed.
package migrations

import (
	"embed"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
