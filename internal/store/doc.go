// Package store persists what the host explicitly asks to keep: a snapshot
// of the object model and the device record, and a bounded state history of
// value changes.
//
// The live object model is never read back automatically on startup;
// LoadObjects exists for hosts and the HTTP API that want the last snapshot.
// History rows older than the retention window are removed by Prune, which
// the Retention loop calls periodically.
package store
