// Package mqtt provides the MQTT transport for the vehicle bridge.
//
// This package manages:
//   - A single broker session per Client (no internal reconnect)
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - CONNACK classification: credential or identity refusals are
//     ErrAuthRejected, everything else ErrConnectionFailed
//
// # Architecture
//
// The vehicle module and the bridge never talk directly; both are clients of
// the same broker. The module publishes metrics under its topic tree and
// answers commands on per-request response topics.
//
//	Vehicle module ↔ MQTT Broker ↔ Bridge
//
// Reconnection is owned by internal/connection, which dials a fresh Client
// after each loss.
//
// # Security Considerations
//
//   - Use TLS for brokers reachable over the internet (cfg.Broker.TLS=true)
//   - Broker.Insecure skips certificate verification; only for self-signed
//     test brokers
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	topics := mqtt.NewTopics("ovms", "alice", "car1")
//	client, err := mqtt.Dial(ctx, cfg.MQTT, mqtt.DialOptions{
//	    Will: &mqtt.Will{Topic: topics.Status(), Payload: []byte("offline"), QoS: 1, Retained: true},
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.All(), 1, handler)
package mqtt
