// Package influxdb provides optional time-series telemetry for fireplaced.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring.
//
// # Purpose
//
// This package records:
//   - Fireplace property values over time (flame, lamp level, fan speed)
//   - Connection lifecycle events (connects, disconnects, backoff delays)
//   - Command round-trip latency
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePropertyMetric("lamplevel", 7)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
package influxdb
