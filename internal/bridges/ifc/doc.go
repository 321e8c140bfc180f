// Package ifc maintains the session with the fireplace's IFC board.
//
// The board exposes a plain-text command interface over a serial line;
// a Telnet bridge adapter makes that line reachable as a TCP stream.
// Lines are terminated by a single CR character, never LF.
//
// The package is built from small cooperating parts:
//
//   - Session: the raw stream connection. Connect, CR-delimited reads,
//     writes, idempotent close. No retry logic.
//   - Coordinator: the long-lived facade. It supervises the connection
//     with exponential backoff, serializes outbound commands through a
//     bounded rate-limited queue, correlates responses to pending
//     requests by arrival order, applies unsolicited HEY pushes, and
//     reconciles everything into the fireplace state store.
//   - Probe: a throwaway reachability check used during setup.
//
// # Concurrency
//
// Three goroutines run for the coordinator's lifetime: the connection
// supervisor (which also owns the read loop while connected), the
// command dispatcher, and the refresh scheduler. They communicate only
// through the bounded queue and the single-writer state store.
//
// # Protocol timing
//
// The board is slow and easily overwhelmed. The dispatcher enforces a
// minimum spacing between commands, a fixed settle delay follows every
// (re)connect before the first refresh sweep, and each pending request
// carries a response timeout. All intervals come from configuration.
//
// # Correlation caveat
//
// The wire format carries no request identifiers. Responses are matched
// to requests purely by arrival order: HEY-prefixed lines are classified
// first, bare OK/ERROR lines complete the oldest pending SET, and any
// other line is offered to the oldest pending GET. A stray non-prefixed
// line shaped like an expected value is indistinguishable from the real
// response; this is a known protocol limitation, not something the
// coordinator tries to outguess.
package ifc
