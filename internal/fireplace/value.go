package fireplace

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value range limits per the IFC board's wire grammar.
const (
	maxLevel      = 10
	maxChannel    = 255
	maxBrightness = 100
)

// Color holds the four LED channels. Channels are 0-255.
type Color struct {
	Red   int `json:"red"`
	Green int `json:"green"`
	Blue  int `json:"blue"`
	White int `json:"white"`
}

// Any reports whether at least one channel is nonzero.
func (c Color) Any() bool {
	return c.Red > 0 || c.Green > 0 || c.Blue > 0 || c.White > 0
}

// Value is a tagged variant holding one property value.
//
// The zero Value is a KindBool false (OFF). Construct values with the
// New* helpers or ParseValue; inspect them via the kind-specific
// accessors after checking Kind().
type Value struct {
	kind       Kind
	b          bool
	level      int
	color      Color
	colorOff   bool
	brightness int
}

// NewBool returns an ON/OFF value.
func NewBool(on bool) Value {
	return Value{kind: KindBool, b: on}
}

// NewLevel returns a 0-10 intensity value.
func NewLevel(level int) Value {
	return Value{kind: KindLevel, level: level}
}

// NewColor returns an RGBW color value.
func NewColor(c Color) Value {
	return Value{kind: KindColor, color: c}
}

// NewColorOff returns the LEDCOLOR OFF sentinel. The stored color is
// unknown; the board reports OFF instead of a stale color.
func NewColorOff() Value {
	return Value{kind: KindColor, colorOff: true}
}

// NewBrightness returns a 0-100 LED brightness report.
func NewBrightness(pct int) Value {
	return Value{kind: KindBrightness, brightness: pct}
}

// Kind returns the value's variant tag.
func (v Value) Kind() Kind { return v.kind }

// Bool returns the ON/OFF state. Only meaningful for KindBool.
func (v Value) Bool() bool { return v.b }

// Level returns the 0-10 intensity. Only meaningful for KindLevel.
func (v Value) Level() int { return v.level }

// Color returns the RGBW channels and whether they are valid.
// ok is false for the OFF sentinel (color is unknown).
func (v Value) Color() (c Color, ok bool) {
	return v.color, !v.colorOff
}

// ColorOff reports whether the value is the LEDCOLOR OFF sentinel.
func (v Value) ColorOff() bool { return v.kind == KindColor && v.colorOff }

// Brightness returns the 0-100 report. Only meaningful for KindBrightness.
func (v Value) Brightness() int { return v.brightness }

// String renders the value in the board's GET/HEY response format.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "ON"
		}
		return "OFF"
	case KindLevel:
		return strconv.Itoa(v.level)
	case KindColor:
		if v.colorOff {
			return "OFF"
		}
		return fmt.Sprintf("RED: %d GREEN: %d BLUE: %d WHITE: %d",
			v.color.Red, v.color.Green, v.color.Blue, v.color.White)
	case KindBrightness:
		return strconv.Itoa(v.brightness)
	}
	return ""
}

// MarshalJSON renders the value for API and MQTT payloads:
// booleans as true/false, levels and brightness as integers, colors as
// a channel object or null for the OFF sentinel.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindLevel:
		return json.Marshal(v.level)
	case KindColor:
		if v.colorOff {
			return []byte("null"), nil
		}
		return json.Marshal(v.color)
	case KindBrightness:
		return json.Marshal(v.brightness)
	}
	return []byte("null"), nil
}

// ParseValue parses a GET response or HEY payload for the given property.
//
// The grammar is property-specific:
//   - booleans: ON or OFF
//   - levels: integer 0-10
//   - LEDCOLOR: "RED: r GREEN: g BLUE: b WHITE: w" or the OFF sentinel
//   - LEDBRIGHTNESS: integer 0-100
//
// Returns:
//   - Value: The parsed value
//   - error: ErrMalformedValue or ErrValueOutOfRange on bad input
func ParseValue(p Property, text string) (Value, error) {
	text = strings.TrimSpace(text)

	switch p.Kind() {
	case KindBool:
		return parseBool(text)
	case KindLevel:
		n, err := parseBoundedInt(text, maxLevel)
		if err != nil {
			return Value{}, err
		}
		return NewLevel(n), nil
	case KindColor:
		return parseColorResponse(text)
	case KindBrightness:
		n, err := parseBoundedInt(text, maxBrightness)
		if err != nil {
			return Value{}, err
		}
		return NewBrightness(n), nil
	}
	return Value{}, fmt.Errorf("%w: %q", ErrUnknownProperty, p)
}

// ParseSetValue parses a caller-supplied value in SET command format.
// This is the grammar accepted on MQTT command topics and in API requests:
// identical to ParseValue except LEDCOLOR uses the comma form "r,g,b,w".
func ParseSetValue(p Property, text string) (Value, error) {
	text = strings.TrimSpace(text)

	if p.Kind() == KindColor {
		return parseColorChannels(text)
	}
	return ParseValue(p, text)
}

// FormatSetCommand builds the full SET command line (without terminator)
// for the property and value.
//
// Returns:
//   - string: e.g. "SET LAMPLEVEL 7" or "SET LEDCOLOR 255,128,64,32"
//   - error: ErrNotSettable, ErrWrongKind, or ErrMalformedValue for the
//     color OFF sentinel (the board has no SET form for it)
func FormatSetCommand(p Property, v Value) (string, error) {
	if !p.Settable() {
		return "", fmt.Errorf("%w: %s", ErrNotSettable, p)
	}
	if v.kind != p.Kind() {
		return "", fmt.Errorf("%w: %s takes kind %d, got %d", ErrWrongKind, p, p.Kind(), v.kind)
	}

	switch v.kind {
	case KindBool, KindLevel:
		return fmt.Sprintf("SET %s %s", p, v.String()), nil
	case KindColor:
		if v.colorOff {
			return "", fmt.Errorf("%w: LEDCOLOR OFF is not settable, use SET LED OFF", ErrMalformedValue)
		}
		return fmt.Sprintf("SET %s %d,%d,%d,%d", p,
			v.color.Red, v.color.Green, v.color.Blue, v.color.White), nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotSettable, p)
}

// FormatGetCommand builds the full GET command line (without terminator).
//
// Returns:
//   - string: e.g. "GET LEDCOLOR"
//   - error: ErrNotSettable for the push-only LEDBRIGHTNESS
func FormatGetCommand(p Property) (string, error) {
	if p == LEDBrightness {
		return "", fmt.Errorf("%w: %s is push-only", ErrNotSettable, p)
	}
	return fmt.Sprintf("GET %s", p), nil
}

// parseBool parses an ON/OFF token, case-insensitively.
func parseBool(text string) (Value, error) {
	switch strings.ToUpper(text) {
	case "ON":
		return NewBool(true), nil
	case "OFF":
		return NewBool(false), nil
	}
	return Value{}, fmt.Errorf("%w: expected ON or OFF, got %q", ErrMalformedValue, text)
}

// parseBoundedInt parses a non-negative integer with an inclusive cap.
func parseBoundedInt(text string, max int) (int, error) {
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrMalformedValue, text)
	}
	if n < 0 || n > max {
		return 0, fmt.Errorf("%w: %d outside 0-%d", ErrValueOutOfRange, n, max)
	}
	return n, nil
}

// parseColorResponse parses the board's LEDCOLOR response format:
// "RED: r GREEN: g BLUE: b WHITE: w" or the OFF sentinel.
func parseColorResponse(text string) (Value, error) {
	if strings.EqualFold(text, "OFF") {
		return NewColorOff(), nil
	}

	fields := strings.Fields(text)
	if len(fields) != 8 {
		return Value{}, fmt.Errorf("%w: expected 4 labelled channels, got %q", ErrMalformedValue, text)
	}

	labels := []string{"RED:", "GREEN:", "BLUE:", "WHITE:"}
	channels := make([]int, 4)
	for i, label := range labels {
		if !strings.EqualFold(fields[i*2], label) {
			return Value{}, fmt.Errorf("%w: expected %s at position %d in %q", ErrMalformedValue, label, i*2, text)
		}
		n, err := parseBoundedInt(fields[i*2+1], maxChannel)
		if err != nil {
			return Value{}, err
		}
		channels[i] = n
	}

	return NewColor(Color{
		Red:   channels[0],
		Green: channels[1],
		Blue:  channels[2],
		White: channels[3],
	}), nil
}

// parseColorChannels parses the SET form "r,g,b,w".
func parseColorChannels(text string) (Value, error) {
	if strings.EqualFold(text, "OFF") {
		return NewColorOff(), nil
	}

	parts := strings.Split(text, ",")
	if len(parts) != 4 {
		return Value{}, fmt.Errorf("%w: expected r,g,b,w, got %q", ErrMalformedValue, text)
	}

	channels := make([]int, 4)
	for i, part := range parts {
		n, err := parseBoundedInt(strings.TrimSpace(part), maxChannel)
		if err != nil {
			return Value{}, err
		}
		channels[i] = n
	}

	return NewColor(Color{
		Red:   channels[0],
		Green: channels[1],
		Blue:  channels[2],
		White: channels[3],
	}), nil
}
