// Package fireplace models the DaVinci fireplace's property domain.
//
// It defines the fixed property set exposed by the IFC board, the wire
// grammar for property values (parse and format), the derived-state rules
// that couple level/color properties to their power switches, and the
// single-writer state store that holds the canonical device snapshot.
//
// # Properties
//
// The board exposes seven tracked properties: LAMP, LAMPLEVEL, LED,
// LEDCOLOR, FLAME, HEATFAN, HEATFANSPEED. An eighth, LEDBRIGHTNESS,
// arrives as an unsolicited push only; it is parsed for validity and
// then discarded.
//
// # Values
//
// Values are a tagged variant (bool, 0-10 level, RGBW color with an OFF
// sentinel, 0-100 brightness) rather than raw strings, so malformed
// input is rejected at the parse boundary and every consumer works with
// typed data.
//
// # State Store
//
// The Store has exactly one writer (the coordinator's inbound-line
// handler) and many readers. Readers receive immutable snapshots;
// subscribers are notified after each atomically applied change.
package fireplace
