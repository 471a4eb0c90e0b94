// Package api implements the Keygrid control protocol.
//
// Clients talk to the daemon over a unix socket, either by posting single
// requests to /request or by holding a WebSocket open on /ws. Both carry
// the same message:
//
//	{"type": "get_button", "id": "42", "data": {"serial": "CL1", "key": 7}}
//
// and get back
//
//	{"type": "get_button", "id": "42", "result": "Ok", "data": {...}}
//
// Requests are dispatched by type through a fixed handler table. Unknown
// types are ignored: HTTP answers 204 and the WebSocket sends nothing, so
// newer clients can probe older daemons.
//
// Validation failures are never protocol errors. A request always gets a
// response whose result names what went wrong (DeviceNotFound,
// InvalidImage, ...). Every device scoped request answers DeviceNotFound
// for a serial the daemon does not manage.
//
// WebSocket clients may subscribe to event types; matching session events
// are pushed as {"type": "event", "data": <event>}.
package api
