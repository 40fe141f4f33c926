package entity

import (
	"maps"
	"time"

	"github.com/nerrad567/ovms-bridge/internal/parser"
)

// Type is the entity-type tag assigned by classification.
type Type string

// Entity types.
const (
	TypeScalar        Type = "scalar"
	TypeBoolean       Type = "boolean"
	TypeActuator      Type = "actuator"
	TypePositionalFix Type = "positional_fix"
)

// RelationshipType names a typed edge between two objects.
type RelationshipType string

// Relationship types.
const (
	// RelFeedsComposite links a component reading (latitude) to the composite
	// object derived from it (positional fix).
	RelFeedsComposite RelationshipType = "feeds-composite"

	// RelLocationSensor links auxiliary location readings (speed, altitude,
	// heading) to the positional fix they describe.
	RelLocationSensor RelationshipType = "location-sensor"

	// RelAccuracySource links a GPS quality feed to a positional fix.
	RelAccuracySource RelationshipType = "accuracy-source"
)

// Registry priorities. A higher priority is a more authoritative claim on a topic.
const (
	PriorityDefault  = 0
	PriorityVersion  = 5
	PriorityLocation = 10
	PriorityFirmware = 100
)

// Rule identifies which classification rule produced a Metric.
type Rule string

// Classification rule variants, in evaluation order.
const (
	RuleExactMatch          Rule = "exact_match"
	RulePatternMatch        Rule = "pattern_match"
	RuleStructuralHeuristic Rule = "structural_heuristic"
)

// Metric is the classification of one topic.
type Metric struct {
	// Topic is the full wire topic.
	Topic string `json:"topic"`

	// Path is the canonical dotted metric path (e.g. "v.b.soc").
	Path string `json:"path"`

	Name        string        `json:"name"`
	Unit        string        `json:"unit,omitempty"`
	Family      parser.Family `json:"family,omitempty"`
	Category    string        `json:"category"`
	DeviceClass string        `json:"device_class,omitempty"`
	Icon        string        `json:"icon,omitempty"`

	// Numeric is true when the object's state must be a number.
	Numeric bool `json:"numeric"`

	Type Type `json:"type"`

	// Inverted flips boolean payloads (wire "1" means object false).
	Inverted bool `json:"inverted,omitempty"`

	Priority int  `json:"priority"`
	Rule     Rule `json:"rule"`
}

// Hints returns the parser hints for this metric.
func (m Metric) Hints() parser.Hints {
	return parser.Hints{
		Numeric: m.Numeric,
		Family:  m.Family,
		Unit:    m.Unit,
	}
}

// Object is a synthesized object derived from one or more topics.
type Object struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Topic       string         `json:"topic"`
	Type        Type           `json:"type"`
	Category    string         `json:"category"`
	Unit        string         `json:"unit,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Value       any            `json:"value"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Available   bool           `json:"available"`
	UpdatedAt   time.Time      `json:"updated_at"`

	// Metric is the classification the object was created from.
	// Composite objects carry a synthetic metric.
	Metric Metric `json:"metric"`
}

// Clone returns a copy that shares no mutable state with o.
// Attribute values are copied one level deep.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := *o
	c.Attributes = maps.Clone(o.Attributes)
	return &c
}

// SetAttribute sets one attribute, allocating the bag on first use.
func (o *Object) SetAttribute(key string, value any) {
	if o.Attributes == nil {
		o.Attributes = make(map[string]any)
	}
	o.Attributes[key] = value
}

// Device defaults for OVMS modules.
const (
	Manufacturer = "Open Vehicles"
	Model        = "OVMS Module"

	// MaxVersionLength caps the firmware version string kept on DeviceInfo.
	MaxVersionLength = 64
)

// DeviceInfo is the device-level record shared by all objects of a vehicle.
type DeviceInfo struct {
	Identifier      string    `json:"identifier"`
	Name            string    `json:"name"`
	Manufacturer    string    `json:"manufacturer"`
	Model           string    `json:"model"`
	SoftwareVersion string    `json:"sw_version"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewDeviceInfo returns the device record for a vehicle.
func NewDeviceInfo(vehicleID, name string) DeviceInfo {
	if name == "" {
		name = vehicleID
	}
	return DeviceInfo{
		Identifier:      vehicleID,
		Name:            "OVMS - " + name,
		Manufacturer:    Manufacturer,
		Model:           Model,
		SoftwareVersion: "Unknown",
	}
}

// RawMessage is one inbound message.
type RawMessage struct {
	Topic    string
	Payload  []byte
	Received time.Time
}
