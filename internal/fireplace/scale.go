package fireplace

import "math"

// Scale conversions between UI-facing percentages and the board's native
// domains. The store always holds native 0-10 levels and 0-255 channels;
// conversion happens only at the API/MQTT boundary.

// PercentToLevel converts a 0-100 percentage to a 0-10 board level.
func PercentToLevel(pct int) int {
	return clamp(int(math.Round(float64(pct)/10)), 0, maxLevel)
}

// LevelToPercent converts a 0-10 board level to a 0-100 percentage.
func LevelToPercent(level int) int {
	return clamp(level*10, 0, 100)
}

// PercentToChannel converts a 0-100 percentage to a 0-255 color channel.
// Computed as pct*255/100 so half-point inputs round up exactly.
func PercentToChannel(pct int) int {
	return clamp(int(math.Round(float64(pct)*255/100)), 0, maxChannel)
}

// ChannelToPercent converts a 0-255 color channel to a 0-100 percentage.
func ChannelToPercent(channel int) int {
	return clamp(int(math.Round(float64(channel)*100/255)), 0, 100)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
