package fireplace

import (
	"fmt"
	"strings"
)

// Property identifies one of the IFC board's exposed properties.
// The string value is the exact token used on the wire.
type Property string

// The fixed property set. LEDBrightness is push-only: the board reports
// it but never accepts a GET or SET for it.
const (
	Lamp          Property = "LAMP"
	LampLevel     Property = "LAMPLEVEL"
	LED           Property = "LED"
	LEDColor      Property = "LEDCOLOR"
	Flame         Property = "FLAME"
	HeatFan       Property = "HEATFAN"
	HeatFanSpeed  Property = "HEATFANSPEED"
	LEDBrightness Property = "LEDBRIGHTNESS"
)

// Kind classifies a property's value shape.
type Kind int

const (
	// KindBool is an ON/OFF switch property.
	KindBool Kind = iota

	// KindLevel is an integer 0-10 intensity property.
	KindLevel

	// KindColor is a four-channel RGBW property with an OFF sentinel.
	KindColor

	// KindBrightness is the push-only 0-100 LED brightness report.
	KindBrightness
)

// String returns the kind name used in API and MQTT payloads.
func (k Kind) String() string {
	switch k {
	case KindLevel:
		return "level"
	case KindColor:
		return "color"
	case KindBrightness:
		return "brightness"
	default:
		return "bool"
	}
}

// RefreshOrder lists the tracked properties in the order a full refresh
// sweep queries them. LEDBrightness is excluded: it cannot be queried.
var RefreshOrder = []Property{
	Lamp,
	LampLevel,
	LED,
	LEDColor,
	Flame,
	HeatFan,
	HeatFanSpeed,
}

// ParseProperty maps a wire or API token to a Property.
// Matching is case-insensitive.
//
// Returns:
//   - Property: The matched property
//   - error: ErrUnknownProperty if the token is not in the fixed set
func ParseProperty(s string) (Property, error) {
	switch Property(strings.ToUpper(strings.TrimSpace(s))) {
	case Lamp:
		return Lamp, nil
	case LampLevel:
		return LampLevel, nil
	case LED:
		return LED, nil
	case LEDColor:
		return LEDColor, nil
	case Flame:
		return Flame, nil
	case HeatFan:
		return HeatFan, nil
	case HeatFanSpeed:
		return HeatFanSpeed, nil
	case LEDBrightness:
		return LEDBrightness, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProperty, s)
}

// Kind returns the value shape for the property.
func (p Property) Kind() Kind {
	switch p {
	case LampLevel, HeatFanSpeed:
		return KindLevel
	case LEDColor:
		return KindColor
	case LEDBrightness:
		return KindBrightness
	default:
		return KindBool
	}
}

// Settable reports whether the board accepts SET commands for the property.
func (p Property) Settable() bool {
	return p != LEDBrightness
}

// Key returns the lowercase form used in MQTT topics, API paths, and
// history rows.
func (p Property) Key() string {
	return strings.ToLower(string(p))
}
