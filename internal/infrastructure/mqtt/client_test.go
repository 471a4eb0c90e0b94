package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/keygrid-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "keygrid-test",
		},
		QoS:         1,
		TopicPrefix: "keygrid",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("keygrid")

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"SystemStatus", topics.SystemStatus(), "keygrid/system/status"},
		{"DeviceState", topics.DeviceState("CL123"), "keygrid/device/CL123/state"},
		{"DeviceEvent", topics.DeviceEvent("CL123", "button_down"), "keygrid/event/CL123/button_down"},
		{"DeviceCommand", topics.DeviceCommand("CL123", "press"), "keygrid/command/CL123/press"},
		{"AllDeviceCommands", topics.AllDeviceCommands(), "keygrid/command/+/+"},
		{"AllDeviceEvents", topics.AllDeviceEvents(), "keygrid/event/#"},
		{"Under relative", topics.Under("lights/hall"), "keygrid/lights/hall"},
		{"Under absolute", topics.Under("/zigbee2mqtt/hall/set"), "zigbee2mqtt/hall/set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestNewTopics_Prefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultTopicPrefix},
		{"home/desk/", "home/desk"},
		{"custom", "custom"},
	}
	for _, tt := range tests {
		if got := NewTopics(tt.in).Prefix(); got != tt.want {
			t.Errorf("NewTopics(%q).Prefix() = %q, want %q", tt.in, got, tt.want)
		}
	}

	var zero Topics
	if zero.SystemStatus() != "keygrid/system/status" {
		t.Errorf("zero Topics should fall back to default prefix, got %q", zero.SystemStatus())
	}
}

func TestParseDeviceCommand(t *testing.T) {
	topics := NewTopics("keygrid")

	tests := []struct {
		topic   string
		serial  string
		command string
		ok      bool
	}{
		{"keygrid/command/CL123/press", "CL123", "press", true},
		{"keygrid/command/CL123", "", "", false},
		{"keygrid/command/CL123/press/extra", "", "", false},
		{"keygrid/event/CL123/press", "", "", false},
		{"other/command/CL123/press", "", "", false},
		{"keygrid/command//press", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			serial, command, ok := topics.ParseDeviceCommand(tt.topic)
			if ok != tt.ok || serial != tt.serial || command != tt.command {
				t.Errorf("ParseDeviceCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, serial, command, ok, tt.serial, tt.command, tt.ok)
			}
		})
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "keygrid"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "keygrid-test" {
		t.Errorf("ClientID = %q, want keygrid-test", opts.ClientID)
	}
	if opts.Username != "keygrid" || opts.Password != "secret" {
		t.Errorf("credentials not applied")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, NewTopics("keygrid"), "keygrid-test")

	if !opts.WillEnabled || opts.WillTopic != "keygrid/system/status" || !opts.WillRetained {
		t.Errorf("LWT = (%v, %q, retained=%v)", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("LWT payload = %s", opts.WillPayload)
	}
}

func TestStatusPayload(t *testing.T) {
	var got map[string]string
	if err := json.Unmarshal([]byte(statusPayload("online", "keygrid-core", "")), &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["status"] != "online" || got["client_id"] != "keygrid-core" {
		t.Errorf("payload = %v", got)
	}
	if _, ok := got["reason"]; ok {
		t.Error("reason should be omitted when empty")
	}
}

// =============================================================================
// Validation Tests (no broker)
// =============================================================================

func TestPublishValidation(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "keygrid/x", nil, 3, ErrInvalidQoS},
		{"oversized payload", "keygrid/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "keygrid/x", []byte("{}"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON_Unencodable(t *testing.T) {
	c := &Client{cfg: testConfig()}
	err := c.PublishJSON("keygrid/x", make(chan int), false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: %v", err)
	}
	if err := c.Subscribe("keygrid/#", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos: %v", err)
	}
	if err := c.Subscribe("keygrid/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: %v", err)
	}
	if err := c.Subscribe("keygrid/#", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: %v", err)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("unsubscribe empty: %v", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("keygrid/#") {
		t.Error("failed subscribe must not be tracked")
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
}

// =============================================================================
// Handler Wrapping
// =============================================================================

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Info(string, ...any) {}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestWrapHandler(t *testing.T) {
	c := &Client{}
	logger := &mockLogger{}
	c.SetLogger(logger)

	var got string
	ok := c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})
	ok(nil, fakeMessage{topic: "keygrid/command/A/press", payload: []byte(`{"key":1}`)})
	if got != `keygrid/command/A/press={"key":1}` {
		t.Errorf("handler saw %q", got)
	}

	failing := c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })
	failing(nil, fakeMessage{topic: "t"})

	panicking := c.wrapHandler(func(string, []byte) error { panic("boom") })
	panicking(nil, fakeMessage{topic: "t"})

	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one handler error", logger.warns)
	}
	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want one recovered panic", logger.errors)
	}
}
