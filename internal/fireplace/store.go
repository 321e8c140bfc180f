package fireplace

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source records what caused a state change.
type Source string

const (
	// SourceGet marks values from GET responses (refresh sweeps).
	SourceGet Source = "get"

	// SourcePush marks values from unsolicited HEY messages.
	SourcePush Source = "push"

	// SourceDerived marks values inferred by the derivation rules
	// (e.g. LAMP turned on because LAMPLEVEL went above zero).
	SourceDerived Source = "derived"
)

// PropertyState is one property's current value plus bookkeeping.
type PropertyState struct {
	// Value is the current typed value.
	Value Value `json:"value"`

	// Known is false until the first value arrives for the property.
	Known bool `json:"known"`

	// UpdatedAt is when the value last arrived (or was derived).
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is an immutable copy of the full device state.
//
// Version increases by one for every applied change batch, so readers
// can cheaply detect staleness.
type Snapshot struct {
	Version    uint64                     `json:"version"`
	TakenAt    time.Time                  `json:"taken_at"`
	Properties map[Property]PropertyState `json:"properties"`
}

// Get returns the state of one property in the snapshot.
func (s Snapshot) Get(p Property) (PropertyState, bool) {
	ps, ok := s.Properties[p]
	return ps, ok
}

// Change describes one property mutation produced by Apply.
type Change struct {
	Property Property  `json:"property"`
	Value    Value     `json:"value"`
	Source   Source    `json:"source"`
	At       time.Time `json:"at"`
}

// Subscriber is notified after each applied change batch.
// Called synchronously from the store's writer; keep it fast and
// offload slow work to a goroutine or channel.
type Subscriber func(snapshot Snapshot, changes []Change)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Store holds the canonical device state.
//
// It has exactly one writer role: the coordinator's inbound-line handler
// calls Apply sequentially as lines arrive. Mutations are applied
// atomically per line, so readers never observe a partially updated
// record. Readers call Snapshot from any goroutine.
type Store struct {
	mu      sync.RWMutex
	props   map[Property]PropertyState
	version uint64

	subs   map[string]Subscriber
	subsMu sync.RWMutex

	logger Logger
}

// NewStore creates an empty state store. Every property starts unknown.
func NewStore() *Store {
	return &Store{
		props:  make(map[Property]PropertyState, len(RefreshOrder)),
		subs:   make(map[string]Subscriber),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for derivation diagnostics.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Apply writes one received value into the store, running the
// derivation rules, and notifies subscribers if anything changed.
//
// Derivation rules:
//   - Booleans: an explicit ON/OFF is authoritative and overwrites any
//     previously derived value.
//   - LAMPLEVEL > 0 sets LAMP = ON; level 0 never clears LAMP.
//   - HEATFANSPEED > 0 sets HEATFAN = ON; speed 0 never clears it.
//   - LEDCOLOR with any nonzero channel sets LED = ON. The OFF sentinel
//     sets LED = OFF and clears the stored color, so reads report OFF
//     rather than a stale color.
//   - LEDBRIGHTNESS is accepted and discarded; it never mutates state.
//
// Parameters:
//   - p: The property the value belongs to
//   - v: The parsed value (kind must match the property)
//   - source: SourceGet or SourcePush
//
// Returns:
//   - []Change: The mutations applied, including derived ones; empty if
//     the value matched current state
//   - error: ErrWrongKind if the value variant does not fit the property
func (s *Store) Apply(p Property, v Value, source Source) ([]Change, error) {
	if v.Kind() != p.Kind() {
		return nil, fmt.Errorf("%w: %s cannot hold %s", ErrWrongKind, p, v)
	}

	// Push-only report: validated upstream, never stored.
	if p == LEDBrightness {
		s.logger.Debug("discarding push-only brightness report", "value", v.Brightness())
		return nil, nil
	}

	now := time.Now().UTC()

	s.mu.Lock()
	var changes []Change

	changes = s.set(p, v, source, now, changes)

	switch p {
	case LampLevel:
		if v.Level() > 0 {
			changes = s.derive(Lamp, NewBool(true), now, changes)
		}
	case HeatFanSpeed:
		if v.Level() > 0 {
			changes = s.derive(HeatFan, NewBool(true), now, changes)
		}
	case LEDColor:
		if v.ColorOff() {
			changes = s.derive(LED, NewBool(false), now, changes)
		} else if c, ok := v.Color(); ok && c.Any() {
			changes = s.derive(LED, NewBool(true), now, changes)
		}
	}

	var snapshot Snapshot
	if len(changes) > 0 {
		s.version++
		snapshot = s.snapshotLocked()
	}
	s.mu.Unlock()

	if len(changes) > 0 {
		s.notify(snapshot, changes)
	}
	return changes, nil
}

// set records a received value. Must hold s.mu.
func (s *Store) set(p Property, v Value, source Source, now time.Time, changes []Change) []Change {
	current, known := s.props[p]
	if known && current.Value == v {
		// Same value: refresh the timestamp but report no change.
		current.UpdatedAt = now
		s.props[p] = current
		return changes
	}

	s.props[p] = PropertyState{Value: v, Known: true, UpdatedAt: now}
	return append(changes, Change{Property: p, Value: v, Source: source, At: now})
}

// derive records a rule-derived value. Must hold s.mu.
func (s *Store) derive(p Property, v Value, now time.Time, changes []Change) []Change {
	current, known := s.props[p]
	if known && current.Value == v {
		return changes
	}

	s.logger.Debug("derived state change", "property", p, "value", v.String())
	s.props[p] = PropertyState{Value: v, Known: true, UpdatedAt: now}
	return append(changes, Change{Property: p, Value: v, Source: SourceDerived, At: now})
}

// Snapshot returns an immutable copy of the current device state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Version returns the current change counter without copying state.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// snapshotLocked copies the state map. Must hold s.mu (read or write).
func (s *Store) snapshotLocked() Snapshot {
	props := make(map[Property]PropertyState, len(s.props))
	for p, ps := range s.props {
		props[p] = ps
	}
	return Snapshot{
		Version:    s.version,
		TakenAt:    time.Now().UTC(),
		Properties: props,
	}
}

// Subscribe registers a subscriber for change notifications.
//
// Returns an opaque handle to pass to Unsubscribe.
func (s *Store) Subscribe(fn Subscriber) string {
	id := uuid.New().String()

	s.subsMu.Lock()
	s.subs[id] = fn
	s.subsMu.Unlock()

	return id
}

// Unsubscribe removes a subscriber. Unknown handles are ignored.
func (s *Store) Unsubscribe(id string) {
	s.subsMu.Lock()
	delete(s.subs, id)
	s.subsMu.Unlock()
}

// notify delivers a change batch to all subscribers.
func (s *Store) notify(snapshot Snapshot, changes []Change) {
	s.subsMu.RLock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(snapshot, changes)
	}
}
