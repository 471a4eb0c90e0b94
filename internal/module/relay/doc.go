// Package relay implements the mqtt module, which bridges Keygrid to an
// MQTT broker.
//
// Outbound, every event is published (never retained) to
//
//	<prefix>/event/<serial>/<event_type>
//
// and the online state of each device is kept retained under
// <prefix>/device/<serial>/state.
//
// Inbound, the module subscribes to <prefix>/command/+/+ and understands:
//
//	press       {"key": 7}         simulates a press of key 7
//	brightness  {"percent": 40}    sets the device brightness
//
// Buttons carrying the mqtt_publish component publish their configured
// payload when pressed. A topic starting with "/" is used as given;
// otherwise it is placed under the prefix.
package relay
