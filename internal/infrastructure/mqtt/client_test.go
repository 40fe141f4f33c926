package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/ovms-bridge/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a closed local port.
// Unit tests never need a running broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1,
			ClientID: "ovms-bridge-test",
		},
		QoS: 1,
	}
}

// fakeMessage implements pahomqtt.Message for handler tests.
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

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// =============================================================================
// Dial Tests
// =============================================================================

func TestDialRefusedPort(t *testing.T) {
	_, err := Dial(context.Background(), testConfig(), DialOptions{})
	if err == nil {
		t.Fatal("Dial() expected error for closed port")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Dial() error = %v, want ErrConnectionFailed", err)
	}
	if errors.Is(err, ErrAuthRejected) {
		t.Errorf("Dial() network failure classified as auth: %v", err)
	}
}

func TestDialCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig()
	cfg.Broker.Host = "192.0.2.1" // TEST-NET-1, never routable
	cfg.Broker.Port = 1883

	_, err := Dial(ctx, cfg, DialOptions{})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Dial() error = %v, want ErrConnectionFailed", err)
	}
}

// =============================================================================
// CONNACK Classification Tests
// =============================================================================

func TestIsAuthCode(t *testing.T) {
	tests := []struct {
		code byte
		want bool
	}{
		{0, false},
		{1, true},
		{2, true},
		{3, false},
		{4, true},
		{5, true},
		{0xFE, false},
		{0xFF, false},
	}

	for _, tt := range tests {
		if got := IsAuthCode(tt.code); got != tt.want {
			t.Errorf("IsAuthCode(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestConnackMessage(t *testing.T) {
	if got := ConnackMessage(5); !strings.Contains(got, "Not Authorised") {
		t.Errorf("ConnackMessage(5) = %q", got)
	}
	if got := ConnackMessage(42); got != "unknown return code 42" {
		t.Errorf("ConnackMessage(42) = %q", got)
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBrokerURL(t *testing.T) {
	cfg := config.MQTTBrokerConfig{Host: "broker.example", Port: 8883, TLS: true}
	if got := BrokerURL(cfg); got != "ssl://broker.example:8883" {
		t.Errorf("BrokerURL() = %q", got)
	}
	cfg.TLS = false
	cfg.Port = 1883
	if got := BrokerURL(cfg); got != "tcp://broker.example:1883" {
		t.Errorf("BrokerURL() = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "alice", Password: "secret"}
	cfg.Broker.TLS = true
	cfg.Broker.Insecure = true

	opts := buildClientOptions(cfg)
	reader := pahomqtt.NewOptionsReader(opts)

	if reader.AutoReconnect() {
		t.Error("AutoReconnect = true, want false")
	}
	if reader.ConnectRetry() {
		t.Error("ConnectRetry = true, want false")
	}
	if reader.ClientID() != "ovms-bridge-test" {
		t.Errorf("ClientID = %q", reader.ClientID())
	}
	if reader.Username() != "alice" || reader.Password() != "secret" {
		t.Error("credentials not applied")
	}
	tlsCfg := reader.TLSConfig()
	if tlsCfg == nil || tlsCfg.MinVersion != tls.VersionTLS12 || !tlsCfg.InsecureSkipVerify {
		t.Errorf("TLSConfig = %+v", tlsCfg)
	}
	if servers := reader.Servers(); len(servers) != 1 || servers[0].String() != "ssl://127.0.0.1:1" {
		t.Errorf("Servers = %v", servers)
	}
}

func TestConfigureWill(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureWill(opts, Will{Topic: "ovms/alice/car1/status", Payload: []byte("offline"), QoS: 1, Retained: true})
	reader := pahomqtt.NewOptionsReader(opts)

	if !reader.WillEnabled() {
		t.Fatal("WillEnabled = false")
	}
	if reader.WillTopic() != "ovms/alice/car1/status" {
		t.Errorf("WillTopic = %q", reader.WillTopic())
	}
	if string(reader.WillPayload()) != "offline" {
		t.Errorf("WillPayload = %q", reader.WillPayload())
	}
	if !reader.WillRetained() || reader.WillQos() != 1 {
		t.Error("will must be retained at QoS 1")
	}
}

// =============================================================================
// Validation Tests (no session)
// =============================================================================

func TestPublishValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"oversized", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 1, ErrNotConnected},
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

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v", err)
	}
	if err := c.Subscribe("a/#", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v", err)
	}
	if err := c.Subscribe("a/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}
	if err := c.Subscribe("a/#", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("a/#") {
		t.Error("failed subscribe must not be tracked")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// =============================================================================
// Handler Wrapping Tests
// =============================================================================

func TestWrapHandlerRecoversPanic(t *testing.T) {
	c := &Client{}
	logger := &mockLogger{}
	c.SetLogger(logger)

	h := c.wrapHandler(func(string, []byte) error { panic("boom") })
	h(nil, fakeMessage{topic: "a/b", payload: []byte("x")})

	if len(logger.errors) != 1 {
		t.Errorf("errors logged = %d, want 1", len(logger.errors))
	}
}

func TestWrapHandlerLogsError(t *testing.T) {
	c := &Client{}
	logger := &mockLogger{}
	c.SetLogger(logger)

	var gotTopic string
	h := c.wrapHandler(func(topic string, _ []byte) error {
		gotTopic = topic
		return errors.New("queue full")
	})
	h(nil, fakeMessage{topic: "ovms/alice/car1/metric/v/b/soc"})

	if gotTopic != "ovms/alice/car1/metric/v/b/soc" {
		t.Errorf("handler topic = %q", gotTopic)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings logged = %d, want 1", len(logger.warns))
	}
}

func TestWrapHandlerNoLogger(t *testing.T) {
	c := &Client{}
	h := c.wrapHandler(func(string, []byte) error { panic("boom") })
	h(nil, fakeMessage{topic: "a"}) // must not panic
}

// =============================================================================
// Topic Builder Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("ovms", "alice", "car1")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Base", topics.Base(), "ovms/alice/car1"},
		{"Status", topics.Status(), "ovms/alice/car1/status"},
		{"Metric", topics.Metric("v.b.soc"), "ovms/alice/car1/metric/v/b/soc"},
		{"All", topics.All(), "ovms/alice/car1/#"},
		{"AnyAccount", topics.AnyAccount(), "ovms/+/car1/#"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestDialTimeoutBounded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	cfg := testConfig()
	cfg.Broker.Host = "192.0.2.1"
	cfg.Broker.Port = 1883

	start := time.Now()
	_, err := Dial(ctx, cfg, DialOptions{})
	if err == nil {
		t.Fatal("Dial() expected error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Dial() took %v, want bounded by ctx", elapsed)
	}
}
