// Package database provides SQLite connectivity for Keygrid Core.
//
// It owns the connection lifecycle and the schema migrations for the
// tables that back the image cache and the action history. Queries
// against those tables live in internal/store.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named NNNN_description.up.sql with an optional
// matching NNNN_description.down.sql. They are applied in version order,
// each version in its own transaction.
package database
