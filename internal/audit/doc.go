// Package audit records every command sent to the vehicle module in the
// command_log table: who asked, what was sent and how it ended.
package audit
