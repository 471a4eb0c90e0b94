package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "keygrid"

// Topics builds Keygrid topic names under a single prefix.
//
//	topics := mqtt.NewTopics("keygrid")
//	topics.DeviceEvent("CL12345", "button_down")
//	// Returns: "keygrid/event/CL12345/button_down"
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Trailing slashes are
// trimmed; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// SystemStatus is the retained online/offline topic, also used as the LWT.
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// DeviceState is the retained connection state topic for one device.
func (t Topics) DeviceState(serial string) string {
	return fmt.Sprintf("%s/device/%s/state", t.Prefix(), serial)
}

// DeviceEvent is where an event of the given type for serial is mirrored.
func (t Topics) DeviceEvent(serial, eventType string) string {
	return fmt.Sprintf("%s/event/%s/%s", t.Prefix(), serial, eventType)
}

// DeviceCommand is the inbound command topic for one device.
func (t Topics) DeviceCommand(serial, command string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.Prefix(), serial, command)
}

// AllDeviceCommands matches every inbound command.
//
// Pattern: {prefix}/command/+/+
func (t Topics) AllDeviceCommands() string {
	return t.Prefix() + "/command/+/+"
}

// AllDeviceEvents matches every mirrored event.
//
// Pattern: {prefix}/event/#
func (t Topics) AllDeviceEvents() string {
	return t.Prefix() + "/event/#"
}

// Under joins a user-supplied suffix onto the prefix. Absolute topics
// (leading "/") are returned unchanged without the slash.
func (t Topics) Under(suffix string) string {
	if rest, ok := strings.CutPrefix(suffix, "/"); ok {
		return rest
	}
	return t.Prefix() + "/" + suffix
}

// ParseDeviceCommand splits a topic produced by DeviceCommand back into
// serial and command. ok is false for any other topic.
func (t Topics) ParseDeviceCommand(topic string) (serial, command string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix()+"/command/")
	if !found {
		return "", "", false
	}
	serial, command, found = strings.Cut(rest, "/")
	if !found || serial == "" || command == "" || strings.Contains(command, "/") {
		return "", "", false
	}
	return serial, command, true
}
