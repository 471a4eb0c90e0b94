// Package external hosts out-of-process plugins.
//
// Each plugin lives in its own directory under the plugins directory and
// is described by a plugin.toml manifest:
//
//	name = "weather"
//	version = "1.2.0"
//	command = "./weather"
//	listening_for = ["button_action"]
//
//	[[features]]
//	name = "core"
//	version = "0.2"
//
//	[components.weather_tile]
//	display_name = "Weather"
//	default = '{"city":"Oslo"}'
//	schema = '{"type":"object","properties":{"city":{"type":"string"}}}'
//
// The plugin process talks to Keygrid over stdin/stdout, one JSON object
// per line. The host sends notifications ({"method":"event","params":...})
// and, for plugins with custom_editor = true, requests carrying an "id"
// that the plugin answers with {"id":...,"result":...} or
// {"id":...,"error":"..."}. A plugin may send "log", "press" and
// "set_brightness" notifications of its own.
package external
