// Package entity defines the object model shared by the bridge: the
// classification of a topic (Metric), the synthesized objects built from it
// (Object), the vehicle's device record (DeviceInfo) and the in-memory Store
// that holds the live objects of one vehicle.
package entity
