package ifc

import (
	"fmt"
	"strings"
	"time"

	"github.com/NTillmann/davinci-fireplace-ha/internal/fireplace"
)

// commandKind distinguishes the two request shapes on the wire.
type commandKind int

const (
	// kindSet expects a bare OK or ERROR acknowledgment.
	kindSet commandKind = iota

	// kindGet expects a property-specific value line.
	kindGet
)

func (k commandKind) String() string {
	if k == kindGet {
		return "GET"
	}
	return "SET"
}

// command is one queue entry: the raw line to send plus the completion
// channel the original caller waits on.
//
// The done channel is buffered (capacity 1) and receives exactly one
// result: nil, ErrCommandRejected, ErrCommandTimeout, ErrConnectionLost,
// or ErrClosed. GET commands complete with nil once the correlated value
// has been applied to the state store.
type command struct {
	text       string
	kind       commandKind
	property   fireplace.Property
	enqueuedAt time.Time
	done       chan error
}

func newCommand(text string, kind commandKind, property fireplace.Property) *command {
	return &command{
		text:       text,
		kind:       kind,
		property:   property,
		enqueuedAt: time.Now(),
		done:       make(chan error, 1),
	}
}

// parseCommandText classifies a raw command line as SET or GET and
// validates the property token. The value portion of a SET is checked
// against the property's grammar so malformed commands are rejected
// before they occupy queue space.
func parseCommandText(text string) (*command, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommand, text)
	}

	verb := strings.ToUpper(fields[0])
	property, err := fireplace.ParseProperty(fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	switch verb {
	case "GET":
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: GET takes no value: %q", ErrInvalidCommand, text)
		}
		line, err := fireplace.FormatGetCommand(property)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		return newCommand(line, kindGet, property), nil

	case "SET":
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: SET requires a value: %q", ErrInvalidCommand, text)
		}
		raw := strings.Join(fields[2:], " ")
		value, err := fireplace.ParseSetValue(property, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		line, err := fireplace.FormatSetCommand(property, value)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		return newCommand(line, kindSet, property), nil
	}

	return nil, fmt.Errorf("%w: unknown verb %q", ErrInvalidCommand, verb)
}
