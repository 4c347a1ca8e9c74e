// Package migrations compiles the daemon's SQL migration files into the
// binary, so a deployed lumend carries its own schema and never depends on
// loose .sql files on the host.
//
// Importing this package for side effects registers the embedded files with
// the database package:
//
//	import _ "github.com/nerrad567/lumen-core/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/lumen-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
