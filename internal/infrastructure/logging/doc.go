// Package logging provides structured logging for the OVMS bridge.
//
// It wraps log/slog with a fixed set of default fields (service, version)
// and the level/format/output switches from config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("connection").Info("connected", "broker", addr)
//
// Never log broker passwords, API secrets or bearer tokens.
package logging
