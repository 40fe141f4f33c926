// Package dispatcher applies inbound vehicle messages to the object store.
//
// A message for an unknown topic creates objects first; every message then
// updates the objects bound to its topic and runs the merge rules (positional
// fix recomputation, GPS accuracy, firmware version). Each Dispatch call is
// isolated: a panic or parse failure is contained to that message.
package dispatcher
