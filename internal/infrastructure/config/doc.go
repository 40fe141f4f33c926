// Package config handles loading and validating the OVMS bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (OVMS_*)
//   - Deriving a stable MQTT client ID when none is configured
//   - Validation of required fields
//
// Security Considerations:
//   - Broker passwords, InfluxDB tokens and the API signing secret should be
//     set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Vehicle.BaseTopic())
package config
