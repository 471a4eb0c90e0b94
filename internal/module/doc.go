// Package module is the Keygrid extension contract and the Manager that
// hosts modules.
//
// A module owns a set of component names, listens for a declared set of
// event types and may customise how its components are added to, removed
// from and edited on a button. Built-in modules live in subpackages;
// out-of-process plugins are adapted to this interface by module/external.
//
// # Compatibility
//
// The host publishes a table of (feature, version) pairs. A module lists
// the pairs it was built against and is loaded only if every pair matches
// the host exactly. There is no range matching. A module that does not
// mention the essential features is still loaded, with a warning.
//
// # Dispatch
//
// Events are offered to modules in registration order, one module at a
// time. A module only receives event types it lists in ListeningFor; the
// wildcard "*" receives everything.
package module
