// Package database provides the SQLite connection and schema migrations used
// by the bridge's snapshot and state-history store.
//
// The connection runs with a single writer (SQLite's model), an optional WAL
// journal and a busy timeout. Migrations are plain .up.sql/.down.sql pairs
// named YYYYMMDD_HHMMSS_description and are handed to Migrate as an fs.FS,
// normally the embedded set from the top-level migrations package.
//
// Usage:
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
