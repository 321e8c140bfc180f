// Package config loads and validates fireplaced configuration.
//
// Configuration is loaded in three layers:
//  1. Hardcoded defaults (defaultConfig)
//  2. YAML file values (configs/config.yaml by default)
//  3. Environment variable overrides (FIREPLACE_* pattern)
//
// The fireplace section carries the protocol timing constants: the
// 1-second command spacing, the 2-second response timeout, the 100-entry
// queue bound and the 10s..3600s reconnect backoff. These default to the
// values the IFC board's Telnet bridge is known to tolerate; override
// them only for testing.
package config
