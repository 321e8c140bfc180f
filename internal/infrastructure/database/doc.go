// Package database provides the SQLite connection for fireplaced.
//
// The database stores the property state-change history (an audit trail of
// every observed transition, whether caused by a command, a poll, or an
// unsolicited push from the board). Schema is managed through embedded
// migrations applied at startup.
//
// SQLite is configured with WAL mode and a single writer connection,
// which matches the daemon's single-writer state model.
package database
