// Package core supervises the device sessions of one Keygrid host.
//
// The Manager owns a session per managed serial. A serial is managed when
// it has an active config file in the device config directory; AddDevice
// creates (or restores) that file and RemoveDevice disables it. A
// reconnection ticker re-attaches closed sessions and picks up configured
// devices that were not reachable at startup.
//
// The Manager is also the event sink of every session: events go to the
// module manager in registration order, then to the event hub that
// control protocol clients subscribe to, and button actions are recorded
// in the action history.
package core
