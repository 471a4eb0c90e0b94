// Package driver defines the contract between Keygrid and a family of
// button-grid devices, and the Manager that owns the registered drivers.
//
// A Driver discovers devices without connecting to them, reports the static
// input layout for a model, and opens a Device. A Device is a connected
// handle: it reports input edges, paints keys from an on-device image cache
// and adjusts brightness. Device calls block; callers run them on dedicated
// goroutines.
//
// Discovery results (Metadata) are reported by the driver and unverified.
// The Manager upgrades them to an Identifier carrying the namespaced driver
// name and the layout the driver reports for that model.
package driver
