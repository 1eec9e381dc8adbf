// Package config handles loading and validating LeafBox Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Reading a .env file the way the dashboard tooling does
//   - Overriding with LEAFBOX_* environment variables
//   - Validation of required fields
//
// Sensitive values (broker password, JWT secret, InfluxDB token) should be set
// through the environment rather than committed to the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
