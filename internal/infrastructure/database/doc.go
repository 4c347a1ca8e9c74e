// Package database opens and migrates the daemon's SQLite store.
//
// The store holds node index assignments and per-device profile state. It is
// opened in WAL mode with a single pooled connection: SQLite allows one
// writer at a time, and a pool of one keeps the daemon's own goroutines from
// contending for the write lock. A busy timeout covers the rare case of an
// external tool holding the file.
//
// All statements are parameterised. The database file is created with 0600
// permissions since the daemon runs privileged.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded SQL files, applied in version order, each in its
// own transaction. They are additive: new columns are nullable or carry a
// DEFAULT, and nothing is dropped or renamed, so downgrading the daemon
// never breaks an already-migrated store. Each migration ships an .up.sql
// and a matching .down.sql.
package database
