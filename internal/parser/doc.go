// Package parser converts raw vehicle payload strings into typed values.
//
// Everything here is a pure function: the same payload and hints always
// produce the same Value. The hints come from the metric's classification
// (numeric required, unit family, unit).
//
// A payload that cannot be typed for a numeric metric is a ParseFailure: the
// Value is empty, Failed is set and Attributes["raw_value"] keeps the
// original string so the update is never dropped.
package parser
