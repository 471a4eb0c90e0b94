// Package devconfig persists per-device configuration.
//
// Each managed device has one JSON file named after its serial in the
// configuration directory:
//
//	<dir>/<serial>.json
//
// Disabling a device renames its file to <serial>.json.disabled and
// restoring renames it back. Only devices with an active file are
// considered configured.
//
// A Watcher reports external edits to configuration files so the owning
// session can reload. Files written through the Store are not reported.
package devconfig
