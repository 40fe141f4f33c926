package mqtt

import (
	"errors"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrAuthRejected is returned when the broker refuses the client's
	// credentials, identity or protocol. Retrying will not help.
	ErrAuthRejected = errors.New("mqtt: connection refused by broker")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)

// IsAuthCode reports whether a CONNACK return code is a permanent refusal:
// bad protocol version, identifier rejected, bad credentials or not
// authorised. Server-unavailable and network errors are transient.
func IsAuthCode(code byte) bool {
	switch code {
	case packets.ErrRefusedBadProtocolVersion,
		packets.ErrRefusedIDRejected,
		packets.ErrRefusedBadUsernameOrPassword,
		packets.ErrRefusedNotAuthorised:
		return true
	default:
		return false
	}
}

// ConnackMessage returns a human-readable description of a CONNACK code.
func ConnackMessage(code byte) string {
	if msg, ok := packets.ConnackReturnCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown return code %d", code)
}

// classifyConnectError wraps a failed connect with ErrAuthRejected or
// ErrConnectionFailed depending on the CONNACK return code.
func classifyConnectError(token pahomqtt.Token, err error) error {
	ct, ok := token.(*pahomqtt.ConnectToken)
	if !ok {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	code := ct.ReturnCode()
	if IsAuthCode(code) {
		return fmt.Errorf("%w: %s (code %d): %w", ErrAuthRejected, ConnackMessage(code), code, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
}
