package ifc

import "errors"

// Domain-specific errors for the board session.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed indicates the TCP connection to the Telnet
	// bridge could not be established.
	ErrConnectionFailed = errors.New("ifc: connection failed")

	// ErrNotConnected indicates an operation that requires an open
	// session was attempted while disconnected.
	ErrNotConnected = errors.New("ifc: not connected")

	// ErrConnectionLost indicates the session dropped while a command
	// was in flight. The command may or may not have reached the board.
	ErrConnectionLost = errors.New("ifc: connection lost")

	// ErrQueueFull indicates the outbound command queue is at capacity.
	// The enqueue is rejected; the caller decides whether to retry.
	ErrQueueFull = errors.New("ifc: command queue full")

	// ErrCommandTimeout indicates no correlated response arrived within
	// the response timeout. Only the specific request fails; the
	// connection stays up.
	ErrCommandTimeout = errors.New("ifc: command timed out")

	// ErrCommandRejected indicates the board answered ERROR.
	ErrCommandRejected = errors.New("ifc: command rejected by board")

	// ErrInvalidCommand indicates a raw command string that is neither
	// a well-formed SET nor GET.
	ErrInvalidCommand = errors.New("ifc: invalid command")

	// ErrClosed indicates the coordinator has been shut down.
	ErrClosed = errors.New("ifc: coordinator closed")
)
