package ifc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// defaultWriteTimeout bounds individual writes. Commands are a handful
// of bytes; anything slower means the bridge is wedged.
const defaultWriteTimeout = 5 * time.Second

// lineTerminator is the board's line delimiter: a single CR, never LF.
const lineTerminator = '\r'

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Session owns one raw stream connection to the Telnet bridge.
//
// It provides connect, CR-delimited line reads, writes, and failure
// detection. It holds no retry logic: any read or write failure hands
// ownership back to the coordinator's supervisor, which is the only
// component allowed to close and reopen sessions.
//
// Thread Safety:
//   - One reader and one writer goroutine are supported concurrently.
//   - Close is idempotent and safe to call from any goroutine.
type Session struct {
	conn        net.Conn
	reader      *bufio.Reader
	readTimeout time.Duration

	// partial holds bytes consumed before a read deadline fired mid-line.
	// Accessed only from the reader goroutine.
	partial string

	writeMu sync.Mutex
	done    *closeOnce
}

// Dial opens a session to the Telnet bridge.
//
// Parameters:
//   - ctx: Context for cancellation of the dial
//   - address: host:port of the bridge
//   - connectTimeout: Maximum time for the TCP dial
//   - readTimeout: Per-read deadline; see ReadLine for timeout semantics
//
// Returns:
//   - *Session: Open session ready for use
//   - error: ErrConnectionFailed wrapping the dial error
func Dial(ctx context.Context, address string, connectTimeout, readTimeout time.Duration) (*Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, address, err)
	}

	return &Session{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		readTimeout: readTimeout,
		done:        newCloseOnce(),
	}, nil
}

// ReadLine blocks until a CR-terminated line arrives and returns it with
// surrounding whitespace trimmed. Splitting is strictly on CR; a stray
// LF from the bridge ends up as leading whitespace on the next line and
// is trimmed away.
//
// A read deadline of readTimeout is applied per call. The board is
// legitimately silent for long stretches, so callers should treat a
// timeout (net.Error with Timeout() == true) as keepalive, not failure.
// Bytes consumed before the deadline fired are carried into the next
// call, so a line split across a timeout is never truncated.
//
// Returns:
//   - string: The trimmed line (may be empty)
//   - error: Timeout, EOF, or connection error
func (s *Session) ReadLine() (string, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return "", fmt.Errorf("set read deadline: %w", err)
	}

	line, err := s.reader.ReadString(lineTerminator)
	if err != nil {
		// ReadString hands back whatever it consumed before the error.
		s.partial += line
		return "", err
	}

	line = s.partial + line
	s.partial = ""
	return strings.TrimSpace(strings.TrimSuffix(line, string(lineTerminator))), nil
}

// WriteLine appends the CR terminator and blocks until the line is
// flushed to the socket.
//
// Returns:
//   - error: Write or deadline error
func (s *Session) WriteLine(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := s.conn.Write([]byte(text + string(lineTerminator))); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close shuts the connection down. Idempotent and safe from any state;
// it unblocks a pending ReadLine.
func (s *Session) Close() error {
	var err error
	s.done.once.Do(func() {
		close(s.done.ch)
		err = s.conn.Close()
	})
	return err
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done.Done():
		return true
	default:
		return false
	}
}
