// Package mqtt provides optional MQTT connectivity for fireplaced.
//
// When enabled, the daemon:
//   - publishes a retained state message per property on davinci/state/<property>
//   - accepts commands on davinci/command/<property>/set
//   - announces availability on davinci/system/status with an LWT for
//     crash detection
//
// The broker connection is managed by paho with auto-reconnect;
// subscriptions are tracked and restored after reconnection.
//
// MQTT is an outer surface: the coordinator never depends on it. The
// wiring lives in cmd/fireplaced.
package mqtt
