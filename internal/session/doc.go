// Package session runs the live connection to one button grid.
//
// A Session moves through Blank, Connecting, Live and Closed. While Live
// it runs three goroutines under one errgroup:
//
//   - the poll loop reads input edges from the driver at a bounded rate,
//     debounces them and queues button events;
//   - the command loop executes render and device commands, so slow image
//     uploads never stall input;
//   - the dispatch loop hands queued events to the event sink in arrival
//     order.
//
// The poll and command loops each lock an OS thread because driver calls
// block. A lost connection moves the session to Closed; reconnecting is
// the caller's job (see package core) and goes through Attach again.
//
// Rendering is content addressed: every key image is keyed by
// render.Key over its renderer component, and the device's image cache is
// consulted before converting and uploading anything.
package session
