// Package database provides SQLite connectivity for LeafBox Core.
//
// This package manages:
//   - The connection, with WAL mode and foreign keys enabled
//   - Schema migrations embedded into the binary
//   - Transaction helpers for multi-statement writes
//   - The canonical timestamp format for TEXT time columns
//
// All queries in the repositories use ? placeholders; values are never
// interpolated into SQL text.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns are nullable or carry a default, and
// each .up.sql has a matching .down.sql.
package database
