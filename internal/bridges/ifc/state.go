package ifc

import "encoding/json"

// ConnectionState enumerates the supervisor's connection lifecycle.
//
// Commands are dispatched only in StateConnected. Entering any other
// state immediately fails every outstanding pending request.
type ConnectionState int

const (
	// StateDisconnected is the initial state before the first attempt.
	StateDisconnected ConnectionState = iota

	// StateConnecting means a dial is in progress.
	StateConnecting

	// StateConnected means the session is up and commands flow.
	StateConnected

	// StateReconnecting means the session dropped and the supervisor is
	// waiting out a backoff delay before the next attempt.
	StateReconnecting
)

// String returns the lowercase state name used in logs and API payloads.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// MarshalJSON renders the state as its string name.
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
