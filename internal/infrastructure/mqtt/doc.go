// Package mqtt provides MQTT connectivity for Keygrid Core.
//
// The broker is optional. When enabled, Core mirrors device events onto it
// and accepts remote press commands from it, so home automation systems can
// observe and drive button grids without speaking the socket protocol.
//
// # Topic layout
//
// All topics live under a configurable prefix (default "keygrid"):
//
//	keygrid/system/status                  retained online/offline status (LWT)
//	keygrid/device/{serial}/state          retained device connection state
//	keygrid/event/{serial}/{event_type}    device and button events
//	keygrid/command/{serial}/{command}     inbound commands (e.g. "press")
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        serial, command, ok := topics.ParseDeviceCommand(topic)
//	        ...
//	    })
//
// Subscriptions are tracked and restored after reconnect.
package mqtt
