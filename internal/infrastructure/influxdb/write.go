package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePropertyMetric records a fireplace property value.
//
// This is the primary method for recording fireplace telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Booleans are recorded as 0/1 by the caller so all property series
// share a numeric value field.
//
// Parameters:
//   - property: Lowercase property name (e.g., "lamplevel", "flame")
//   - value: The numeric value to record
//
// Example:
//
//	client.WritePropertyMetric("lamplevel", 7)
//	client.WritePropertyMetric("flame", 1)
func (c *Client) WritePropertyMetric(property string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fireplace_state",
		map[string]string{
			"property": property,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionEvent records a connection lifecycle transition.
//
// Used for tracking how often the board link drops and how long
// reconnect backoff runs.
//
// Parameters:
//   - event: Transition name (e.g., "connected", "disconnected", "backoff")
//   - detail: Numeric detail for the event (backoff delay in seconds,
//     consecutive failure count, or 0 when not applicable)
func (c *Client) WriteConnectionEvent(event string, detail float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fireplace_connection",
		map[string]string{
			"event": event,
		},
		map[string]interface{}{
			"detail": detail,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandLatency records the round-trip time of a dispatched command.
//
// Parameters:
//   - property: The property the command targeted
//   - verb: "SET" or "GET"
//   - latency: Time from dispatch to correlated response
//   - ok: Whether the board acknowledged successfully
func (c *Client) WriteCommandLatency(property string, verb string, latency time.Duration, ok bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fireplace_command",
		map[string]string{
			"property": property,
			"verb":     verb,
		},
		map[string]interface{}{
			"latency_ms": float64(latency.Milliseconds()),
			"ok":         ok,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
