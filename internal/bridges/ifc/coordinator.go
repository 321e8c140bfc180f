package ifc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NTillmann/davinci-fireplace-ha/internal/fireplace"
	"github.com/NTillmann/davinci-fireplace-ha/internal/infrastructure/config"
)

// heyPrefix marks unsolicited push notifications from the board.
const heyPrefix = "HEY "

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Stats holds the coordinator's operational counters.
type Stats struct {
	State               string    `json:"state"`
	Connected           bool      `json:"connected"`
	CommandsSent        uint64    `json:"commands_sent"`
	LinesReceived       uint64    `json:"lines_received"`
	PushesReceived      uint64    `json:"pushes_received"`
	AcksCompleted       uint64    `json:"acks_completed"`
	GetsCompleted       uint64    `json:"gets_completed"`
	Timeouts            uint64    `json:"timeouts"`
	DiscardedLines      uint64    `json:"discarded_lines"`
	ErrorsTotal         uint64    `json:"errors_total"`
	ConnectsTotal       uint64    `json:"connects_total"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	QueueDepth          int       `json:"queue_depth"`
	QueueCapacity       int       `json:"queue_capacity"`
	PendingAcks         int       `json:"pending_acks"`
	PendingGets         int       `json:"pending_gets"`
	LastActivity        time.Time `json:"last_activity"`
	LastCommand         string    `json:"last_command,omitempty"`
	LastCommandAt       time.Time `json:"last_command_at,omitempty"`
}

// Coordinator is the long-lived session manager for the IFC board.
//
// It owns the connection lifecycle, the rate-limited command queue, the
// response correlator, and the push handler. Collaborators (API, MQTT,
// entity wrappers) interact only through this facade and the state
// store's snapshots.
//
// Thread Safety:
//   - All public methods are safe for concurrent use.
//   - The state store is written only from the coordinator's read loop.
type Coordinator struct {
	cfg   config.FireplaceConfig
	store *fireplace.Store

	queue   chan *command
	pending *pendingList

	sessionMu sync.RWMutex
	session   *Session

	stateMu     sync.RWMutex
	state       ConnectionState
	connectedCh chan struct{} // closed while state == StateConnected

	// attempts counts consecutive failed connection attempts; it feeds
	// the backoff calculation and resets on every successful connect.
	attempts atomic.Int32

	refreshCh chan struct{}

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	onStateChange   func(ConnectionState)
	onCommandResult func(fireplace.Property, string, time.Duration, error)
	callbackMu      sync.RWMutex

	// Statistics (atomic for lock-free reads)
	commandsTx     atomic.Uint64
	linesRx        atomic.Uint64
	pushesRx       atomic.Uint64
	acksCompleted  atomic.Uint64
	getsCompleted  atomic.Uint64
	timeoutsTotal  atomic.Uint64
	discardedLines atomic.Uint64
	errorsTotal    atomic.Uint64
	connectsTotal  atomic.Uint64
	lastActivity   atomic.Int64

	lastCommandMu sync.RWMutex
	lastCommand   string
	lastCommandAt time.Time
}

// New creates a coordinator. Call Start to begin connecting.
//
// Parameters:
//   - cfg: Connection and protocol timing settings
//   - store: The state store the coordinator writes into
func New(cfg config.FireplaceConfig, store *fireplace.Store) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		store:       store,
		queue:       make(chan *command, cfg.QueueSize),
		pending:     newPendingList(),
		state:       StateDisconnected,
		connectedCh: make(chan struct{}),
		refreshCh:   make(chan struct{}, 1),
		done:        newCloseOnce(),
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// SetOnStateChange sets a callback invoked on every connection state
// transition. Called from the supervisor goroutine; keep it fast.
func (c *Coordinator) SetOnStateChange(callback func(ConnectionState)) {
	c.callbackMu.Lock()
	c.onStateChange = callback
	c.callbackMu.Unlock()
}

// SetOnCommandResult sets a callback invoked when a dispatched command
// resolves: acknowledged, correlated, rejected, or timed out. The verb
// is "SET" or "GET" and the latency runs from dispatch to resolution.
// Called from the read loop and timer goroutines; keep it fast.
func (c *Coordinator) SetOnCommandResult(callback func(property fireplace.Property, verb string, latency time.Duration, err error)) {
	c.callbackMu.Lock()
	c.onCommandResult = callback
	c.callbackMu.Unlock()
}

// Start launches the three coordinator activities: the connection
// supervisor (which owns the read loop), the command dispatcher, and
// the refresh scheduler.
func (c *Coordinator) Start() {
	c.wg.Add(3)
	go c.supervisor()
	go c.dispatcher()
	go c.refresher()
}

// Close tears the coordinator down: cancels all three activities,
// closes the session, and fails every outstanding and queued command
// with ErrClosed. Safe to call multiple times.
func (c *Coordinator) Close() error {
	c.done.Close()

	c.sessionMu.RLock()
	sess := c.session
	c.sessionMu.RUnlock()
	if sess != nil {
		sess.Close()
	}

	c.wg.Wait()

	c.pending.failAll(ErrClosed)
	for {
		select {
		case cmd := <-c.queue:
			cmd.done <- ErrClosed
		default:
			c.setState(StateDisconnected)
			c.logInfo("coordinator closed")
			return nil
		}
	}
}

// =============================================================================
// Boundary interface
// =============================================================================

// SendCommand enqueues a raw command line ("SET LAMP ON", "GET FLAME")
// and blocks until the board responds, the response times out, or ctx
// is cancelled.
//
// Returns:
//   - error: nil on OK (or a correlated GET value), ErrCommandRejected
//     on ERROR, ErrCommandTimeout, ErrQueueFull, ErrInvalidCommand,
//     ErrConnectionLost, or ErrClosed
func (c *Coordinator) SendCommand(ctx context.Context, text string) error {
	cmd, err := parseCommandText(text)
	if err != nil {
		return err
	}
	if err := c.enqueue(cmd); err != nil {
		return err
	}
	return c.await(ctx, cmd)
}

// Set enqueues a typed SET command and blocks until acknowledged.
func (c *Coordinator) Set(ctx context.Context, p fireplace.Property, v fireplace.Value) error {
	line, err := fireplace.FormatSetCommand(p, v)
	if err != nil {
		return err
	}
	cmd := newCommand(line, kindSet, p)
	if err := c.enqueue(cmd); err != nil {
		return err
	}
	return c.await(ctx, cmd)
}

// RefreshProperty enqueues a GET for one property without waiting for
// the response; the value lands in the state store when it arrives.
//
// Returns:
//   - error: ErrQueueFull, ErrClosed, or a property validation error
func (c *Coordinator) RefreshProperty(p fireplace.Property) error {
	line, err := fireplace.FormatGetCommand(p)
	if err != nil {
		return err
	}
	return c.enqueue(newCommand(line, kindGet, p))
}

// RefreshAll schedules a full property sweep. Non-blocking; if a sweep
// is already pending the request coalesces with it.
func (c *Coordinator) RefreshAll() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the current immutable device state.
func (c *Coordinator) Snapshot() fireplace.Snapshot {
	return c.store.Snapshot()
}

// Subscribe registers a state-change subscriber. See fireplace.Store.
func (c *Coordinator) Subscribe(fn fireplace.Subscriber) string {
	return c.store.Subscribe(fn)
}

// Unsubscribe removes a state-change subscriber.
func (c *Coordinator) Unsubscribe(id string) {
	c.store.Unsubscribe(id)
}

// ConnectionStatus returns the current connection state.
func (c *Coordinator) ConnectionStatus() ConnectionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// HealthCheck reports whether the board session is up.
func (c *Coordinator) HealthCheck(_ context.Context) error {
	if c.ConnectionStatus() != StateConnected {
		return ErrNotConnected
	}
	return nil
}

// Stats returns current operational statistics.
func (c *Coordinator) Stats() Stats {
	pendingAcks, pendingGets := c.pending.counts()

	c.lastCommandMu.RLock()
	lastCommand := c.lastCommand
	lastCommandAt := c.lastCommandAt
	c.lastCommandMu.RUnlock()

	state := c.ConnectionStatus()
	return Stats{
		State:               state.String(),
		Connected:           state == StateConnected,
		CommandsSent:        c.commandsTx.Load(),
		LinesReceived:       c.linesRx.Load(),
		PushesReceived:      c.pushesRx.Load(),
		AcksCompleted:       c.acksCompleted.Load(),
		GetsCompleted:       c.getsCompleted.Load(),
		Timeouts:            c.timeoutsTotal.Load(),
		DiscardedLines:      c.discardedLines.Load(),
		ErrorsTotal:         c.errorsTotal.Load(),
		ConnectsTotal:       c.connectsTotal.Load(),
		ConsecutiveFailures: int(c.attempts.Load()),
		QueueDepth:          len(c.queue),
		QueueCapacity:       cap(c.queue),
		PendingAcks:         pendingAcks,
		PendingGets:         pendingGets,
		LastActivity:        time.Unix(c.lastActivity.Load(), 0),
		LastCommand:         lastCommand,
		LastCommandAt:       lastCommandAt,
	}
}

// =============================================================================
// Connection supervisor
// =============================================================================

// supervisor runs the connection state machine for the coordinator's
// lifetime. It is the only component that opens and closes sessions.
func (c *Coordinator) supervisor() {
	defer c.wg.Done()

	for {
		if c.isClosed() {
			return
		}

		c.setState(StateConnecting)
		sess, err := Dial(context.Background(), c.cfg.Address(), c.cfg.GetConnectTimeout(), c.cfg.GetReadTimeout())
		if err != nil {
			c.errorsTotal.Add(1)
			c.logWarn("connect failed", "address", c.cfg.Address(), "error", err)
			c.setState(StateReconnecting)
			if !c.backoffWait() {
				return
			}
			continue
		}

		c.sessionMu.Lock()
		c.session = sess
		c.sessionMu.Unlock()

		c.attempts.Store(0)
		c.connectsTotal.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.setState(StateConnected)
		c.logInfo("connected to board", "address", c.cfg.Address(), "settle_delay", c.cfg.GetSettleDelay().String())

		// The board drops commands sent while it is still settling;
		// hold the first sweep back for the configured delay.
		settle := time.AfterFunc(c.cfg.GetSettleDelay(), c.RefreshAll)

		c.readLoop(sess)

		settle.Stop()
		c.sessionMu.Lock()
		c.session = nil
		c.sessionMu.Unlock()
		sess.Close()

		// Entering a non-connected state fails all outstanding requests.
		c.pending.failAll(ErrConnectionLost)

		if c.isClosed() {
			c.setState(StateDisconnected)
			return
		}

		c.setState(StateReconnecting)
		c.logWarn("connection lost, reconnecting", "address", c.cfg.Address())
		if !c.backoffWait() {
			return
		}
	}
}

// backoffWait sleeps out the exponential backoff delay for the current
// attempt count. Returns false if shutdown was signalled.
func (c *Coordinator) backoffWait() bool {
	attempt := int(c.attempts.Load())
	delay := backoffDelay(c.cfg.GetBackoffBase(), c.cfg.GetBackoffMax(), attempt)
	c.attempts.Add(1)

	c.logInfo("backing off before reconnect", "attempt", attempt+1, "delay", delay.String())

	select {
	case <-c.done.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// backoffDelay computes the reconnect delay for the given attempt:
// base doubled per attempt, capped at max. Attempt 0 yields base.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// readLoop consumes lines from the session until a fatal error or
// shutdown. Read timeouts are keepalive, not failure: the board is
// legitimately silent between state changes.
func (c *Coordinator) readLoop(sess *Session) {
	for {
		if c.isClosed() || sess.Closed() {
			return
		}

		line, err := sess.ReadLine()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if c.isClosed() {
				return
			}
			c.errorsTotal.Add(1)
			c.logWarn("read failed", "error", err)
			return
		}

		if line == "" {
			continue
		}

		c.linesRx.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.handleLine(line)
	}
}

// =============================================================================
// Response correlator
// =============================================================================

// handleLine classifies one inbound line and routes it. Classification
// order matters: HEY pushes first (they never touch pending requests),
// then exact OK/ERROR acknowledgments, then GET value correlation.
func (c *Coordinator) handleLine(line string) {
	switch {
	case strings.HasPrefix(line, heyPrefix):
		c.pushesRx.Add(1)
		c.handlePush(strings.TrimSpace(line[len(heyPrefix):]))

	case line == "OK":
		if req, ok := c.pending.completeOldestAck(nil); ok {
			c.acksCompleted.Add(1)
			c.notifyCommandResult(req, nil)
		} else {
			c.discard("unexpected OK with no pending SET", line)
		}

	case line == "ERROR":
		if req, ok := c.pending.completeOldestAck(ErrCommandRejected); ok {
			c.acksCompleted.Add(1)
			c.notifyCommandResult(req, ErrCommandRejected)
		} else {
			c.discard("unexpected ERROR with no pending SET", line)
		}

	default:
		c.handleGetResponse(line)
	}
}

// handleGetResponse offers a value line to the oldest pending GET.
// On parse failure the request stays pending until its timeout fires,
// per the error handling design: an unparsable line never satisfies or
// fails a request on its own.
func (c *Coordinator) handleGetResponse(line string) {
	req, ok := c.pending.oldestGet()
	if !ok {
		c.discard("value line with no pending GET", line)
		return
	}

	value, err := fireplace.ParseValue(req.property, line)
	if err != nil {
		c.discard(fmt.Sprintf("unparsable %s response, request left pending", req.property), line)
		return
	}

	if !c.pending.complete(req, nil) {
		// Lost the race with the timeout: the caller has already been
		// signalled and a timed-out request must not mutate state.
		c.discard("value arrived after request timeout", line)
		return
	}

	c.getsCompleted.Add(1)
	c.notifyCommandResult(req, nil)
	c.applyValue(req.property, value, fireplace.SourceGet)
}

// handlePush parses an unsolicited "<property> <value>" payload and
// applies it through the same derivation rules GET responses use.
func (c *Coordinator) handlePush(payload string) {
	parts := strings.SplitN(payload, " ", 2)
	if len(parts) != 2 {
		c.discard("malformed push payload", payload)
		return
	}

	property, err := fireplace.ParseProperty(parts[0])
	if err != nil {
		c.discard("push for unknown property", payload)
		return
	}

	value, err := fireplace.ParseValue(property, parts[1])
	if err != nil {
		c.discard(fmt.Sprintf("malformed %s push value", property), payload)
		return
	}

	c.applyValue(property, value, fireplace.SourcePush)
}

// applyValue writes a received value into the state store.
func (c *Coordinator) applyValue(p fireplace.Property, v fireplace.Value, source fireplace.Source) {
	changes, err := c.store.Apply(p, v, source)
	if err != nil {
		c.errorsTotal.Add(1)
		c.logWarn("state apply failed", "property", p, "error", err)
		return
	}
	if len(changes) > 0 {
		c.logDebug("state updated", "property", p, "value", v.String(), "source", string(source), "changes", len(changes))
	}
}

// discard logs and counts a line that could not be routed. Prior state
// is always preserved.
func (c *Coordinator) discard(reason, line string) {
	c.discardedLines.Add(1)
	c.logDebug("discarding line", "reason", reason, "line", line)
}

// =============================================================================
// Command dispatcher
// =============================================================================

// dispatcher drains the queue one command at a time, enforcing the
// minimum inter-command interval. Dispatch pauses (entries remain
// queued) while the session is down.
func (c *Coordinator) dispatcher() {
	defer c.wg.Done()

	var lastDispatch time.Time

	for {
		// Suspend until connected.
		for c.ConnectionStatus() != StateConnected {
			select {
			case <-c.done.Done():
				return
			case <-c.connectedWait():
			}
		}

		var cmd *command
		select {
		case <-c.done.Done():
			return
		case cmd = <-c.queue:
		}

		// Enforce spacing from the previous dispatch; the board drops
		// commands that arrive faster than it can process them.
		if wait := c.cfg.GetCommandInterval() - time.Since(lastDispatch); wait > 0 {
			select {
			case <-c.done.Done():
				cmd.done <- ErrClosed
				return
			case <-time.After(wait):
			}
		}

		c.sessionMu.RLock()
		sess := c.session
		c.sessionMu.RUnlock()
		if sess == nil {
			// Connection dropped between pop and dispatch.
			cmd.done <- ErrConnectionLost
			continue
		}

		// Register before the write completes so the response cannot
		// race the registration.
		req := c.pending.register(cmd, c.cfg.GetResponseTimeout(), c.onRequestTimeout)
		c.recordLastCommand(cmd.text)

		if err := sess.WriteLine(cmd.text); err != nil {
			c.errorsTotal.Add(1)
			c.logWarn("write failed, closing session", "command", cmd.text, "error", err)
			c.pending.complete(req, ErrConnectionLost)
			sess.Close() // forces the read loop out; supervisor reconnects
			continue
		}

		c.commandsTx.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		lastDispatch = time.Now()
		c.logDebug("dispatched", "command", cmd.text)
	}
}

// onRequestTimeout runs when a pending request's response deadline
// fires. Only that request fails; the connection stays up.
func (c *Coordinator) onRequestTimeout(req *pendingRequest) {
	c.timeoutsTotal.Add(1)
	c.notifyCommandResult(req, ErrCommandTimeout)
	c.logWarn("no response within timeout", "kind", req.kind.String(), "property", req.property)
}

// notifyCommandResult reports one resolved request to the command-result
// callback, measuring latency from registration at dispatch time.
func (c *Coordinator) notifyCommandResult(req *pendingRequest, err error) {
	c.callbackMu.RLock()
	callback := c.onCommandResult
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(req.property, req.kind.String(), time.Since(req.createdAt), err)
	}
}

// enqueue adds a command to the bounded queue, rejecting on overflow.
func (c *Coordinator) enqueue(cmd *command) error {
	if c.isClosed() {
		return ErrClosed
	}

	select {
	case c.queue <- cmd:
	default:
		return fmt.Errorf("%w: capacity %d", ErrQueueFull, cap(c.queue))
	}

	if depth := len(c.queue); depth > cap(c.queue)/2 {
		c.logWarn("command queue filling up", "depth", depth, "capacity", cap(c.queue))
	}
	return nil
}

// await blocks until the command completes or ctx is cancelled.
// Cancellation abandons the wait; the command itself still runs.
func (c *Coordinator) await(ctx context.Context, cmd *command) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-cmd.done:
		return err
	}
}

// recordLastCommand remembers the most recent dispatch for diagnostics.
func (c *Coordinator) recordLastCommand(text string) {
	c.lastCommandMu.Lock()
	c.lastCommand = text
	c.lastCommandAt = time.Now().UTC()
	c.lastCommandMu.Unlock()
}

// =============================================================================
// Refresh scheduler
// =============================================================================

// refresher issues full property sweeps: once on the post-connect
// signal and periodically thereafter. Each sweep enqueues one GET per
// tracked property; the queue's spacing serializes them.
func (c *Coordinator) refresher() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.GetScanInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.done.Done():
			return
		case <-c.refreshCh:
			c.enqueueSweep()
		case <-ticker.C:
			if c.ConnectionStatus() == StateConnected {
				c.enqueueSweep()
			}
		}
	}
}

// enqueueSweep enqueues one GET per tracked property in refresh order.
// A full queue aborts the sweep; the next interval retries.
func (c *Coordinator) enqueueSweep() {
	c.logDebug("starting refresh sweep", "properties", len(fireplace.RefreshOrder))

	for _, p := range fireplace.RefreshOrder {
		if err := c.RefreshProperty(p); err != nil {
			c.logWarn("refresh sweep aborted", "property", p, "error", err)
			return
		}
	}
}

// =============================================================================
// State machine plumbing
// =============================================================================

// setState transitions the connection state, maintains the dispatcher's
// wakeup channel, and notifies the state-change callback.
func (c *Coordinator) setState(s ConnectionState) {
	c.stateMu.Lock()
	old := c.state
	if old == s {
		c.stateMu.Unlock()
		return
	}
	c.state = s
	if s == StateConnected {
		close(c.connectedCh)
	} else if old == StateConnected {
		c.connectedCh = make(chan struct{})
	}
	c.stateMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onStateChange
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(s)
	}
}

// connectedWait returns a channel that is closed while the state is
// Connected. Dispatcher suspension point.
func (c *Coordinator) connectedWait() <-chan struct{} {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connectedCh
}

// isClosed reports whether Close has been called.
func (c *Coordinator) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// =============================================================================
// Logging helpers
// =============================================================================

func (c *Coordinator) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Coordinator) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Coordinator) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Coordinator) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
