// Package store provides the SQLite repositories behind Keygrid's per-device
// image library and button action history.
//
// Both repositories take the *sql.DB of an already migrated database (see
// internal/infrastructure/database and the migrations package).
package store
