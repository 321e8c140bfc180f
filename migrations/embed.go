// Package migrations embeds SQL migration files into the binary.
//
// This lets fireplaced run migrations without the SQL files present on
// the filesystem - they are compiled into the executable.
package migrations

import (
	"embed"

	"github.com/NTillmann/davinci-fireplace-ha/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
