// Package database provides SQLite persistence for the T-Deck-Pro hub.
//
// It wraps database/sql with the pragmas the hub depends on (WAL, busy
// timeout, foreign keys), a single-writer connection pool, and embedded
// versioned SQL migrations.
//
// The database is the sole owner of all four entity kinds (devices,
// telemetry, OTA catalog, mesh messages). In-memory state elsewhere is
// derived and rebuildable from it.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        "./data/tdeckpro.db",
//	    WALMode:     true,
//	    BusyTimeout: 5,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
