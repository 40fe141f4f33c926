//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/ovms-bridge/internal/infrastructure/config"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883 that allows
// anonymous access.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
	}
}

func dialT(t *testing.T, clientID string, opts DialOptions) *Client {
	t.Helper()
	c, err := Dial(context.Background(), integrationConfig(clientID), opts)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", clientID, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// TestIntegration_SubscriptionTracking verifies per-session subscription tracking.
func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := dialT(t, "ovms-int-sub-track", DialOptions{})
	topics := NewTopics("ovms-int", "alice", "car1")

	filters := []string{topics.All(), topics.AnyAccount(), topics.Status()}
	handler := func(string, []byte) error { return nil }

	for _, f := range filters {
		if err := client.Subscribe(f, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", f, err)
		}
	}
	if client.SubscriptionCount() != len(filters) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(filters))
	}

	if err := client.Unsubscribe(filters[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(filters[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", filters[0])
	}
}

// TestIntegration_MessageRoundtrip verifies pub/sub works end-to-end.
func TestIntegration_MessageRoundtrip(t *testing.T) {
	pub := dialT(t, "ovms-int-pub", DialOptions{})
	sub := dialT(t, "ovms-int-sub", DialOptions{})
	topics := NewTopics("ovms-int", "alice", "car1")

	received := make(chan string, 1)
	var once sync.Once
	err := sub.Subscribe(topics.All(), 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(topics.Metric("v.b.soc"), []byte("76.5"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != "76.5" {
			t.Errorf("Received = %q, want %q", msg, "76.5")
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

// TestIntegration_NoAutoReconnect verifies a closed session stays closed.
func TestIntegration_NoAutoReconnect(t *testing.T) {
	client := dialT(t, "ovms-int-no-reconnect", DialOptions{})
	client.Close()

	time.Sleep(200 * time.Millisecond)
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
}
