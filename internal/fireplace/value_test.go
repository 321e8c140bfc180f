package fireplace

import (
	"errors"
	"testing"
)

func TestParseProperty(t *testing.T) {
	tests := []struct {
		input   string
		want    Property
		wantErr bool
	}{
		{"LAMP", Lamp, false},
		{"lamplevel", LampLevel, false},
		{" LedColor ", LEDColor, false},
		{"HEATFANSPEED", HeatFanSpeed, false},
		{"LEDBRIGHTNESS", LEDBrightness, false},
		{"THERMOSTAT", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProperty(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownProperty) {
					t.Fatalf("ParseProperty(%q) error = %v, want ErrUnknownProperty", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProperty(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseProperty(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseValue_Booleans(t *testing.T) {
	for _, p := range []Property{Lamp, LED, Flame, HeatFan} {
		v, err := ParseValue(p, "ON")
		if err != nil {
			t.Fatalf("ParseValue(%s, ON) error = %v", p, err)
		}
		if !v.Bool() {
			t.Errorf("ParseValue(%s, ON).Bool() = false", p)
		}

		v, err = ParseValue(p, " OFF ")
		if err != nil {
			t.Fatalf("ParseValue(%s, OFF) error = %v", p, err)
		}
		if v.Bool() {
			t.Errorf("ParseValue(%s, OFF).Bool() = true", p)
		}

		if _, err := ParseValue(p, "MAYBE"); !errors.Is(err, ErrMalformedValue) {
			t.Errorf("ParseValue(%s, MAYBE) error = %v, want ErrMalformedValue", p, err)
		}
	}
}

func TestParseValue_Levels(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr error
	}{
		{"0", 0, nil},
		{"7", 7, nil},
		{"10", 10, nil},
		{"11", 0, ErrValueOutOfRange},
		{"-1", 0, ErrValueOutOfRange},
		{"five", 0, ErrMalformedValue},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParseValue(LampLevel, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseValue(LAMPLEVEL, %q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseValue(LAMPLEVEL, %q) error = %v", tt.input, err)
			}
			if v.Level() != tt.want {
				t.Errorf("Level() = %d, want %d", v.Level(), tt.want)
			}
		})
	}
}

func TestParseValue_Color(t *testing.T) {
	v, err := ParseValue(LEDColor, "RED: 255 GREEN: 128 BLUE: 64 WHITE: 32")
	if err != nil {
		t.Fatalf("ParseValue(LEDCOLOR) error = %v", err)
	}
	c, ok := v.Color()
	if !ok {
		t.Fatal("Color() ok = false, want true")
	}
	want := Color{Red: 255, Green: 128, Blue: 64, White: 32}
	if c != want {
		t.Errorf("Color() = %+v, want %+v", c, want)
	}

	v, err = ParseValue(LEDColor, "OFF")
	if err != nil {
		t.Fatalf("ParseValue(LEDCOLOR, OFF) error = %v", err)
	}
	if !v.ColorOff() {
		t.Error("ColorOff() = false for OFF sentinel")
	}
	if _, ok := v.Color(); ok {
		t.Error("Color() ok = true for OFF sentinel, want false")
	}

	malformed := []string{
		"RED: 255 GREEN: 128 BLUE: 64",
		"RED 255 GREEN 128 BLUE 64 WHITE 32",
		"RED: 300 GREEN: 0 BLUE: 0 WHITE: 0",
		"255,128,64,32",
	}
	for _, input := range malformed {
		if _, err := ParseValue(LEDColor, input); err == nil {
			t.Errorf("ParseValue(LEDCOLOR, %q) expected error", input)
		}
	}
}

func TestParseValue_Brightness(t *testing.T) {
	v, err := ParseValue(LEDBrightness, "63")
	if err != nil {
		t.Fatalf("ParseValue(LEDBRIGHTNESS, 63) error = %v", err)
	}
	if v.Brightness() != 63 {
		t.Errorf("Brightness() = %d, want 63", v.Brightness())
	}

	if _, err := ParseValue(LEDBrightness, "101"); !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("ParseValue(LEDBRIGHTNESS, 101) error = %v, want ErrValueOutOfRange", err)
	}
}

func TestParseSetValue_ColorChannels(t *testing.T) {
	v, err := ParseSetValue(LEDColor, "255, 128,64,32")
	if err != nil {
		t.Fatalf("ParseSetValue(LEDCOLOR) error = %v", err)
	}
	c, _ := v.Color()
	want := Color{Red: 255, Green: 128, Blue: 64, White: 32}
	if c != want {
		t.Errorf("Color() = %+v, want %+v", c, want)
	}

	if _, err := ParseSetValue(LEDColor, "255,128,64"); !errors.Is(err, ErrMalformedValue) {
		t.Errorf("ParseSetValue(3 channels) error = %v, want ErrMalformedValue", err)
	}
}

func TestFormatSetCommand(t *testing.T) {
	tests := []struct {
		name string
		prop Property
		val  Value
		want string
	}{
		{"lamp on", Lamp, NewBool(true), "SET LAMP ON"},
		{"flame off", Flame, NewBool(false), "SET FLAME OFF"},
		{"level", LampLevel, NewLevel(7), "SET LAMPLEVEL 7"},
		{"fan speed", HeatFanSpeed, NewLevel(5), "SET HEATFANSPEED 5"},
		{"color", LEDColor, NewColor(Color{Red: 255, Green: 128, Blue: 64, White: 32}), "SET LEDCOLOR 255,128,64,32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatSetCommand(tt.prop, tt.val)
			if err != nil {
				t.Fatalf("FormatSetCommand() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FormatSetCommand() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := FormatSetCommand(LEDBrightness, NewBrightness(50)); !errors.Is(err, ErrNotSettable) {
		t.Errorf("FormatSetCommand(LEDBRIGHTNESS) error = %v, want ErrNotSettable", err)
	}
	if _, err := FormatSetCommand(Lamp, NewLevel(5)); !errors.Is(err, ErrWrongKind) {
		t.Errorf("FormatSetCommand(LAMP, level) error = %v, want ErrWrongKind", err)
	}
	if _, err := FormatSetCommand(LEDColor, NewColorOff()); !errors.Is(err, ErrMalformedValue) {
		t.Errorf("FormatSetCommand(LEDCOLOR, OFF) error = %v, want ErrMalformedValue", err)
	}
}

func TestFormatGetCommand(t *testing.T) {
	got, err := FormatGetCommand(LEDColor)
	if err != nil {
		t.Fatalf("FormatGetCommand() error = %v", err)
	}
	if got != "GET LEDCOLOR" {
		t.Errorf("FormatGetCommand() = %q, want %q", got, "GET LEDCOLOR")
	}

	if _, err := FormatGetCommand(LEDBrightness); err == nil {
		t.Error("FormatGetCommand(LEDBRIGHTNESS) expected error")
	}
}

// Round-trip: a SET color formats to the comma form, and the same
// channels come back in the board's labelled response form.
func TestColorRoundTrip(t *testing.T) {
	set := NewColor(Color{Red: 255, Green: 128, Blue: 64, White: 32})

	cmd, err := FormatSetCommand(LEDColor, set)
	if err != nil {
		t.Fatalf("FormatSetCommand() error = %v", err)
	}
	if cmd != "SET LEDCOLOR 255,128,64,32" {
		t.Fatalf("FormatSetCommand() = %q", cmd)
	}

	if got := set.String(); got != "RED: 255 GREEN: 128 BLUE: 64 WHITE: 32" {
		t.Errorf("String() = %q", got)
	}

	parsed, err := ParseValue(LEDColor, set.String())
	if err != nil {
		t.Fatalf("ParseValue(round trip) error = %v", err)
	}
	if parsed != set {
		t.Errorf("round trip = %+v, want %+v", parsed, set)
	}
}

func TestScaleConversions(t *testing.T) {
	tests := []struct {
		pct   int
		level int
	}{
		{0, 0},
		{4, 0},
		{5, 1},
		{50, 5},
		{94, 9},
		{95, 10},
		{100, 10},
	}
	for _, tt := range tests {
		if got := PercentToLevel(tt.pct); got != tt.level {
			t.Errorf("PercentToLevel(%d) = %d, want %d", tt.pct, got, tt.level)
		}
	}

	// Half-point inputs (10% = 25.5, 50% = 127.5, 90% = 229.5) must round
	// up; the conversion has to use exact intermediates to get there.
	channelTests := []struct {
		pct     int
		channel int
	}{
		{0, 0},
		{10, 26},
		{50, 128},
		{70, 179},
		{90, 230},
		{100, 255},
	}
	for _, tt := range channelTests {
		if got := PercentToChannel(tt.pct); got != tt.channel {
			t.Errorf("PercentToChannel(%d) = %d, want %d", tt.pct, got, tt.channel)
		}
	}

	if got := LevelToPercent(7); got != 70 {
		t.Errorf("LevelToPercent(7) = %d, want 70", got)
	}
	if got := ChannelToPercent(255); got != 100 {
		t.Errorf("ChannelToPercent(255) = %d, want 100", got)
	}
}
