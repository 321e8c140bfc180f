package ifc

import (
	"context"
	"time"
)

// Probe opens a throwaway connection to verify the Telnet bridge is
// reachable, then closes it immediately. Used by setup flows before a
// coordinator is created; it sends nothing, so a settling board is not
// disturbed.
//
// Parameters:
//   - ctx: Context for cancellation
//   - address: host:port of the bridge
//   - timeout: Dial timeout
//
// Returns:
//   - error: ErrConnectionFailed wrapping the dial error, or nil
func Probe(ctx context.Context, address string, timeout time.Duration) error {
	sess, err := Dial(ctx, address, timeout, timeout)
	if err != nil {
		return err
	}
	return sess.Close()
}
