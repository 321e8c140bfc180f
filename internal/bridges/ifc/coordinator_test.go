package ifc

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NTillmann/davinci-fireplace-ha/internal/fireplace"
	"github.com/NTillmann/davinci-fireplace-ha/internal/infrastructure/config"
)

// testFireplaceConfig returns protocol timings shortened for tests.
func testFireplaceConfig(host string, port int) config.FireplaceConfig {
	return config.FireplaceConfig{
		Host:            host,
		Port:            port,
		ScanInterval:    300,
		ConnectTimeout:  2,
		ReadTimeout:     1,
		CommandInterval: 10, // milliseconds
		ResponseTimeout: 500,
		QueueSize:       100,
		BackoffBase:     1,
		BackoffMax:      2,
		SettleDelay:     0,
		ProbeTimeout:    1,
	}
}

func TestBackoffDelay(t *testing.T) {
	base := 10 * time.Second
	max := 3600 * time.Second

	want := []time.Duration{
		10 * time.Second,   // attempt 0
		20 * time.Second,   // attempt 1
		40 * time.Second,   // attempt 2
		80 * time.Second,   // attempt 3
		160 * time.Second,  // attempt 4
		320 * time.Second,  // attempt 5
		640 * time.Second,  // attempt 6
		1280 * time.Second, // attempt 7
		2560 * time.Second, // attempt 8
		3600 * time.Second, // attempt 9: 5120 capped
		3600 * time.Second, // attempt 10: stays at cap
	}

	for attempt, expected := range want {
		if got := backoffDelay(base, max, attempt); got != expected {
			t.Errorf("backoffDelay(attempt=%d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestParseCommandText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantText string
		wantKind commandKind
		wantErr  bool
	}{
		{"set bool", "SET LAMP ON", "SET LAMP ON", kindSet, false},
		{"set lowercase", "set flame off", "SET FLAME OFF", kindSet, false},
		{"set level", "SET LAMPLEVEL 7", "SET LAMPLEVEL 7", kindSet, false},
		{"set color", "SET LEDCOLOR 255,128,64,32", "SET LEDCOLOR 255,128,64,32", kindSet, false},
		{"get", "GET HEATFANSPEED", "GET HEATFANSPEED", kindGet, false},
		{"get with value", "GET LAMP ON", "", kindGet, true},
		{"set without value", "SET LAMP", "", kindSet, true},
		{"unknown verb", "PING LAMP", "", kindSet, true},
		{"unknown property", "SET THERMOSTAT ON", "", kindSet, true},
		{"bad value", "SET LAMPLEVEL 99", "", kindSet, true},
		{"get push-only", "GET LEDBRIGHTNESS", "", kindGet, true},
		{"empty", "", "", kindSet, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := parseCommandText(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Fatalf("parseCommandText(%q) error = %v, want ErrInvalidCommand", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCommandText(%q) error = %v", tt.input, err)
			}
			if cmd.text != tt.wantText {
				t.Errorf("text = %q, want %q", cmd.text, tt.wantText)
			}
			if cmd.kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", cmd.kind, tt.wantKind)
			}
		})
	}
}

func TestCoordinator_QueueBound(t *testing.T) {
	// No Start(): nothing drains the queue.
	c := New(testFireplaceConfig("127.0.0.1", 10001), fireplace.NewStore())

	for i := 0; i < 100; i++ {
		if err := c.RefreshProperty(fireplace.Lamp); err != nil {
			t.Fatalf("enqueue %d error = %v", i+1, err)
		}
	}

	if err := c.RefreshProperty(fireplace.Lamp); !errors.Is(err, ErrQueueFull) {
		t.Errorf("101st enqueue error = %v, want ErrQueueFull", err)
	}
	if depth := len(c.queue); depth != 100 {
		t.Errorf("queue depth = %d, want 100", depth)
	}
}

func TestCoordinator_HEYDoesNotSatisfyPendingGet(t *testing.T) {
	store := fireplace.NewStore()
	c := New(testFireplaceConfig("127.0.0.1", 10001), store)

	cmd := newCommand("GET LAMPLEVEL", kindGet, fireplace.LampLevel)
	c.pending.register(cmd, time.Second, nil)

	// A push arriving in the correlation window is routed to the push
	// handler and leaves the GET pending.
	c.handleLine("HEY LED ON")

	if _, gets := c.pending.counts(); gets != 1 {
		t.Fatalf("pending gets = %d after HEY, want 1", gets)
	}
	ps, ok := store.Snapshot().Get(fireplace.LED)
	if !ok || !ps.Value.Bool() {
		t.Error("HEY LED ON was not applied to the store")
	}

	// The next plain value line satisfies the GET.
	c.handleLine("7")

	select {
	case err := <-cmd.done:
		if err != nil {
			t.Fatalf("GET done = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("GET never completed")
	}

	ps, ok = store.Snapshot().Get(fireplace.LampLevel)
	if !ok || ps.Value.Level() != 7 {
		t.Error("GET response 7 was not applied to the store")
	}
}

func TestCoordinator_UnparsableResponseLeavesGetPending(t *testing.T) {
	store := fireplace.NewStore()
	c := New(testFireplaceConfig("127.0.0.1", 10001), store)

	cmd := newCommand("GET LAMPLEVEL", kindGet, fireplace.LampLevel)
	c.pending.register(cmd, 200*time.Millisecond, nil)

	c.handleLine("GARBAGE")

	if _, gets := c.pending.counts(); gets != 1 {
		t.Fatal("unparsable line removed the pending GET; it must stay until timeout")
	}
	if len(store.Snapshot().Properties) != 0 {
		t.Error("unparsable line mutated state")
	}

	// The request eventually times out on its own.
	select {
	case err := <-cmd.done:
		if !errors.Is(err, ErrCommandTimeout) {
			t.Errorf("done = %v, want ErrCommandTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("GET never timed out")
	}
}

func TestCoordinator_StrayAckDiscarded(t *testing.T) {
	c := New(testFireplaceConfig("127.0.0.1", 10001), fireplace.NewStore())

	before := c.discardedLines.Load()
	c.handleLine("OK")
	c.handleLine("ERROR")
	c.handleLine("ON")

	if got := c.discardedLines.Load() - before; got != 3 {
		t.Errorf("discarded = %d, want 3", got)
	}
}

func TestCoordinator_ErrorAckRejectsCommand(t *testing.T) {
	c := New(testFireplaceConfig("127.0.0.1", 10001), fireplace.NewStore())

	cmd := newCommand("SET LAMP ON", kindSet, fireplace.Lamp)
	c.pending.register(cmd, time.Second, nil)

	c.handleLine("ERROR")

	select {
	case err := <-cmd.done:
		if !errors.Is(err, ErrCommandRejected) {
			t.Errorf("done = %v, want ErrCommandRejected", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SET never completed")
	}
}

// fakeBoard is a minimal in-process IFC board: it accepts one session,
// answers GETs from a fixed value table, acknowledges SETs with OK, and
// terminates every line with a bare CR. It can drop its connection and
// go silent to exercise failure handling.
type fakeBoard struct {
	listener net.Listener

	mu      sync.Mutex
	conn    net.Conn
	stalled bool
	values  map[string]string
}

func newFakeBoard(t *testing.T) *fakeBoard {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	b := &fakeBoard{
		listener: listener,
		values: map[string]string{
			"LAMP":         "ON",
			"LAMPLEVEL":    "7",
			"LED":          "ON",
			"LEDCOLOR":     "RED: 255 GREEN: 128 BLUE: 64 WHITE: 0",
			"FLAME":        "ON",
			"HEATFAN":      "ON",
			"HEATFANSPEED": "5",
		},
	}
	go b.serve()
	t.Cleanup(func() { listener.Close() })
	return b
}

func (b *fakeBoard) addr() (string, int) {
	addr := b.listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func (b *fakeBoard) serve() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		go b.handle(conn)
	}
}

func (b *fakeBoard) handle(conn net.Conn) {
	defer conn.Close()

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadString('\r')
		if err != nil {
			return
		}

		b.mu.Lock()
		stalled := b.stalled
		b.mu.Unlock()
		if stalled {
			continue
		}

		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}

		b.mu.Lock()
		switch fields[0] {
		case "GET":
			if value, ok := b.values[fields[1]]; ok {
				conn.Write([]byte(value + "\r"))
			} else {
				conn.Write([]byte("ERROR\r"))
			}
		case "SET":
			b.values[fields[1]] = strings.Join(fields[2:], " ")
			conn.Write([]byte("OK\r"))
		}
		b.mu.Unlock()
	}
}

// setStalled toggles whether the board swallows commands without reply.
func (b *fakeBoard) setStalled(stalled bool) {
	b.mu.Lock()
	b.stalled = stalled
	b.mu.Unlock()
}

// drop severs the current connection; the listener keeps accepting.
func (b *fakeBoard) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// waitForConnected polls until the coordinator reports a live session.
func waitForConnected(t *testing.T, c *Coordinator) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.ConnectionStatus() == StateConnected {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("never reached connected state, status = %v", c.ConnectionStatus())
}

// End-to-end: connect, initial sweep after the settle delay, and a
// snapshot matching the board's values.
func TestCoordinator_ConnectAndSweep(t *testing.T) {
	board := newFakeBoard(t)
	host, port := board.addr()

	store := fireplace.NewStore()
	c := New(testFireplaceConfig(host, port), store)
	c.Start()
	defer c.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := store.Snapshot()
		if len(snap.Properties) >= len(fireplace.RefreshOrder) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	snap := store.Snapshot()
	checks := []struct {
		prop fireplace.Property
		want string
	}{
		{fireplace.Lamp, "ON"},
		{fireplace.LampLevel, "7"},
		{fireplace.LED, "ON"},
		{fireplace.LEDColor, "RED: 255 GREEN: 128 BLUE: 64 WHITE: 0"},
		{fireplace.Flame, "ON"},
		{fireplace.HeatFan, "ON"},
		{fireplace.HeatFanSpeed, "5"},
	}
	for _, check := range checks {
		ps, ok := snap.Get(check.prop)
		if !ok {
			t.Fatalf("property %s never arrived", check.prop)
		}
		if ps.Value.String() != check.want {
			t.Errorf("%s = %q, want %q", check.prop, ps.Value.String(), check.want)
		}
	}

	if c.ConnectionStatus() != StateConnected {
		t.Errorf("ConnectionStatus() = %v, want connected", c.ConnectionStatus())
	}
}

func TestCoordinator_SetRoundTrip(t *testing.T) {
	board := newFakeBoard(t)
	host, port := board.addr()

	store := fireplace.NewStore()
	c := New(testFireplaceConfig(host, port), store)
	c.Start()
	defer c.Close()

	// Wait for the session to come up before sending.
	deadline := time.Now().Add(3 * time.Second)
	for c.ConnectionStatus() != StateConnected && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	if err := c.SendCommand(context.Background(), "SET LAMP ON"); err != nil {
		t.Fatalf("SendCommand(SET LAMP ON) error = %v", err)
	}
	if err := c.Set(context.Background(), fireplace.LampLevel, fireplace.NewLevel(4)); err != nil {
		t.Fatalf("Set(LAMPLEVEL, 4) error = %v", err)
	}

	stats := c.Stats()
	if stats.CommandsSent < 2 {
		t.Errorf("CommandsSent = %d, want >= 2", stats.CommandsSent)
	}
	if stats.LastCommand != "SET LAMPLEVEL 4" {
		t.Errorf("LastCommand = %q, want SET LAMPLEVEL 4", stats.LastCommand)
	}
}

// A dropped link fails the in-flight request with ErrConnectionLost, the
// supervisor reconnects on its own, and the successful connect resets
// the consecutive-failure count that feeds the backoff.
func TestCoordinator_ReconnectAfterDrop(t *testing.T) {
	board := newFakeBoard(t)
	host, port := board.addr()

	store := fireplace.NewStore()
	c := New(testFireplaceConfig(host, port), store)
	c.Start()
	defer c.Close()

	waitForConnected(t, c)

	// Let the initial sweep drain so the next GET is the only command
	// in flight.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		acks, gets := c.pending.counts()
		if len(c.queue) == 0 && acks == 0 && gets == 0 &&
			len(store.Snapshot().Properties) >= len(fireplace.RefreshOrder) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Stall the board so the GET is still awaiting its response when
	// the link drops.
	board.setStalled(true)

	result := make(chan error, 1)
	go func() { result <- c.SendCommand(context.Background(), "GET LAMP") }()

	// Wait until the GET has been dispatched and registered.
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, gets := c.pending.counts(); gets == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	board.drop()

	select {
	case err := <-result:
		if !errors.Is(err, ErrConnectionLost) {
			t.Fatalf("in-flight request error = %v, want ErrConnectionLost", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request never failed after the drop")
	}

	board.setStalled(false)
	waitForConnected(t, c)

	stats := c.Stats()
	if stats.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d after reconnect, want 0", stats.ConsecutiveFailures)
	}
	if stats.ConnectsTotal < 2 {
		t.Errorf("ConnectsTotal = %d, want at least 2", stats.ConnectsTotal)
	}
}

func TestCoordinator_CommandResultCallback(t *testing.T) {
	c := New(testFireplaceConfig("127.0.0.1", 10001), fireplace.NewStore())

	type cmdResult struct {
		property fireplace.Property
		verb     string
		latency  time.Duration
		err      error
	}
	results := make(chan cmdResult, 1)
	c.SetOnCommandResult(func(p fireplace.Property, verb string, latency time.Duration, err error) {
		results <- cmdResult{p, verb, latency, err}
	})

	cmd := newCommand("SET LAMP ON", kindSet, fireplace.Lamp)
	c.pending.register(cmd, time.Second, c.onRequestTimeout)
	c.handleLine("OK")

	select {
	case got := <-results:
		if got.property != fireplace.Lamp || got.verb != "SET" || got.err != nil {
			t.Errorf("result = %+v, want LAMP/SET/nil", got)
		}
		if got.latency < 0 {
			t.Errorf("latency = %v, want non-negative", got.latency)
		}
	case <-time.After(time.Second):
		t.Fatal("acknowledged result never reported")
	}

	cmd = newCommand("SET FLAME ON", kindSet, fireplace.Flame)
	c.pending.register(cmd, time.Second, c.onRequestTimeout)
	c.handleLine("ERROR")

	select {
	case got := <-results:
		if !errors.Is(got.err, ErrCommandRejected) {
			t.Errorf("result err = %v, want ErrCommandRejected", got.err)
		}
	case <-time.After(time.Second):
		t.Fatal("rejected result never reported")
	}
}

func TestCoordinator_CloseFailsQueuedCommands(t *testing.T) {
	c := New(testFireplaceConfig("127.0.0.1", 1), fireplace.NewStore())

	cmd := newCommand("SET LAMP ON", kindSet, fireplace.Lamp)
	if err := c.enqueue(cmd); err != nil {
		t.Fatalf("enqueue error = %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case err := <-cmd.done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("done = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("queued command never failed on Close")
	}

	if err := c.RefreshProperty(fireplace.Lamp); !errors.Is(err, ErrClosed) {
		t.Errorf("enqueue after Close error = %v, want ErrClosed", err)
	}
}
