package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/component"
	"github.com/nerrad567/keygrid-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/keygrid-core/internal/module"
)

// Name is the name the module registers under.
const Name = "mqtt"

// ComponentPublish is the component that publishes a message when pressed.
const ComponentPublish = "mqtt_publish"

// queueSize bounds the outbound publish queue.
const queueSize = 256

// Publish is the value of the mqtt_publish component.
type Publish struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Retain  bool            `json:"retain,omitempty"`
}

const publishSchema = `{
	"type": "object",
	"properties": {
		"topic":   {"type": "string", "title": "Topic", "minLength": 1},
		"payload": {"title": "Payload"},
		"retain":  {"type": "boolean", "title": "Retain"}
	},
	"required": ["topic"],
	"additionalProperties": false
}`

// Client is the subset of the MQTT client the module uses.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Topics() mqtt.Topics
	QoS() byte
}

// Controller performs device operations requested over MQTT.
type Controller interface {
	Press(serial string, key uint8) error
	SetBrightness(serial string, percent uint8) error
}

// Logger defines the logging interface used by the module.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds the dependencies of a Relay.
type Options struct {
	Client     Client
	Controller Controller
	Version    string
	Logger     Logger
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

// Relay is the mqtt module.
type Relay struct {
	module.Base

	client  Client
	control Controller
	topics  mqtt.Topics
	version string
	logger  Logger

	queue    chan message
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates the module. Call Start to begin relaying.
func New(opts Options) (*Relay, error) {
	if opts.Client == nil {
		return nil, ErrNoClient
	}
	if opts.Controller == nil {
		return nil, ErrNoController
	}
	r := &Relay{
		client:  opts.Client,
		control: opts.Controller,
		topics:  opts.Client.Topics(),
		version: opts.Version,
		logger:  opts.Logger,
		queue:   make(chan message, queueSize),
		done:    make(chan struct{}),
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r, nil
}

// Name implements module.Module.
func (r *Relay) Name() string { return Name }

// Metadata implements module.Module.
func (r *Relay) Metadata() module.Metadata {
	return module.Metadata{
		Name:        Name,
		Author:      "Keygrid",
		Description: "MQTT event relay and remote presses",
		Version:     r.version,
		UsedFeatures: module.DeclaredFeatures(
			module.FeatureCore, module.FeatureModuleAPI, module.FeatureEvents,
		),
	}
}

// Components implements module.Module.
func (r *Relay) Components() map[string]component.Definition {
	return map[string]component.Definition{
		ComponentPublish: {
			DisplayName: "MQTT publish",
			Description: "Publishes a message when pressed",
			Default:     json.RawMessage(`{"topic":"button"}`),
			Schema:      json.RawMessage(publishSchema),
		},
	}
}

// ListeningFor implements module.Module.
func (r *Relay) ListeningFor() []module.EventType {
	return []module.EventType{module.EventAll}
}

// Start subscribes to device commands and starts the publisher.
func (r *Relay) Start(ctx context.Context) error {
	topic := r.topics.AllDeviceCommands()
	if err := r.client.Subscribe(topic, r.client.QoS(), r.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	r.logger.Info("subscribed to commands", "topic", topic)

	r.wg.Add(1)
	go r.publishLoop(ctx)
	return nil
}

// Stop unsubscribes and drains the publisher.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		if err := r.client.Unsubscribe(r.topics.AllDeviceCommands()); err != nil {
			r.logger.Debug("unsubscribe failed", "error", err)
		}
		close(r.done)
		r.wg.Wait()
	})
}

// HandleEvent implements module.Module. Publishing happens on the
// module's own goroutine.
func (r *Relay) HandleEvent(_ context.Context, ev module.Event) {
	if ev.Serial == "" {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Warn("encoding event", "type", ev.Type, "error", err)
		return
	}
	r.enqueue(message{topic: r.topics.DeviceEvent(ev.Serial, string(ev.Type)), payload: payload})

	switch ev.Type {
	case module.EventDeviceConnected:
		r.enqueue(message{topic: r.topics.DeviceState(ev.Serial), payload: []byte(`{"online":true}`), retained: true})
	case module.EventDeviceDisconnected:
		r.enqueue(message{topic: r.topics.DeviceState(ev.Serial), payload: []byte(`{"online":false}`), retained: true})
	case module.EventButtonAction:
		if ev.Unique != nil {
			r.publishComponent(ev)
		}
	}
}

func (r *Relay) publishComponent(ev module.Event) {
	b := ev.Unique.Snapshot()
	if !b.Has(ComponentPublish) {
		return
	}
	p, err := button.Get[Publish](b, ComponentPublish)
	if err != nil || p.Topic == "" {
		r.logger.Warn("ignoring unreadable mqtt_publish", "serial", ev.Serial, "error", err)
		return
	}
	r.enqueue(message{topic: r.topics.Under(p.Topic), payload: payloadBytes(p.Payload), retained: p.Retain})
}

// payloadBytes sends JSON strings as their bare text and anything else as
// JSON.
func payloadBytes(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return raw
}

func (r *Relay) enqueue(m message) {
	select {
	case r.queue <- m:
	default:
		r.logger.Warn("publish queue full, dropping message", "topic", m.topic)
	}
}

func (r *Relay) publishLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case m := <-r.queue:
			r.send(m)
		case <-r.done:
			for {
				select {
				case m := <-r.queue:
					r.send(m)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) send(m message) {
	if err := r.client.Publish(m.topic, m.payload, r.client.QoS(), m.retained); err != nil {
		r.logger.Warn("publish failed", "topic", m.topic, "error", err)
	}
}

type pressCommand struct {
	Key *uint8 `json:"key"`
}

type brightnessCommand struct {
	Percent *uint8 `json:"percent"`
}

// handleCommand executes a command received on
// <prefix>/command/<serial>/<command>.
func (r *Relay) handleCommand(topic string, payload []byte) error {
	serial, command, ok := r.topics.ParseDeviceCommand(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrUnknownCommand, topic)
	}

	switch command {
	case "press":
		var cmd pressCommand
		if err := json.Unmarshal(payload, &cmd); err != nil || cmd.Key == nil {
			return fmt.Errorf("press %s: payload must be {\"key\": N}", serial)
		}
		r.logger.Debug("remote press", "serial", serial, "key", *cmd.Key)
		return r.control.Press(serial, *cmd.Key)
	case "brightness":
		var cmd brightnessCommand
		if err := json.Unmarshal(payload, &cmd); err != nil || cmd.Percent == nil {
			return fmt.Errorf("brightness %s: payload must be {\"percent\": N}", serial)
		}
		return r.control.SetBrightness(serial, *cmd.Percent)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}
