package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds topics for one vehicle's tree.
// Using these helpers ensures consistent topic naming across the codebase.
//
// The vehicle publishes under {prefix}/{account}/{vehicle}:
//
//	topics := mqtt.NewTopics("ovms", "alice", "car1")
//	soc := topics.Metric("v.b.soc")
//	// Returns: "ovms/alice/car1/metric/v/b/soc"
type Topics struct {
	prefix    string
	account   string
	vehicleID string
}

// NewTopics returns a builder for the given prefix, account and vehicle.
func NewTopics(prefix, account, vehicleID string) Topics {
	return Topics{prefix: prefix, account: account, vehicleID: vehicleID}
}

// Base returns the vehicle's topic root.
//
// Example: ovms/alice/car1
func (t Topics) Base() string {
	return fmt.Sprintf("%s/%s/%s", t.prefix, t.account, t.vehicleID)
}

// Status returns the presence topic carrying "online"/"offline".
//
// Example: ovms/alice/car1/status
func (t Topics) Status() string {
	return t.Base() + "/status"
}

// Metric returns the topic of a dotted metric path.
//
// Example: ovms/alice/car1/metric/v/b/soc
func (t Topics) Metric(path string) string {
	return t.Base() + "/metric/" + strings.ReplaceAll(path, ".", "/")
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// All returns a pattern matching the vehicle's whole tree.
//
// Pattern: ovms/alice/car1/#
func (t Topics) All() string {
	return t.Base() + "/#"
}

// AnyAccount returns a pattern matching the vehicle under any account, for
// modules configured with a different username.
//
// Pattern: ovms/+/car1/#
func (t Topics) AnyAccount() string {
	return fmt.Sprintf("%s/+/%s/#", t.prefix, t.vehicleID)
}
