// Package button is the Keygrid data model: buttons, panels and the
// per-device panel stack.
//
// A Button is nothing more than a map from component name to that
// component's serialised value. Everything a button looks like or does is
// decided by which components are present and by the module that owns each
// component name.
//
// # Ownership
//
// Buttons placed on a live Panel are wrapped in a *Unique, a button with a
// read/write lock. Two panels (or a panel and the Clipboard) may hold the
// same *Unique; a change through one is visible through the other. This is
// how linked buttons work.
//
// RawPanel is the plain, serialisable form used on disk and on the wire.
// Panel is the live form held on a Stack.
//
// # Lock order
//
// Stack, then Panel, then Unique. Nothing in this package acquires them in
// another order, and callers holding a button lock must not call back into
// a Stack.
package button
