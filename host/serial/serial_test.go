package serial

import (
	"testing"
	"time"
)

func TestPacketReadTimeout(t *testing.T) {
	tests := []struct {
		baud   int
		factor float64
		want   time.Duration
	}{
		{115200, 10, 100 * time.Millisecond}, // clamped to termios resolution
		{9600, 50, 100 * time.Millisecond},
		{1200, 10, 133333333 * time.Nanosecond},
		{160, 10, time.Second},
		{0, 10, 0},
		{9600, 0, 0},
	}

	for _, tt := range tests {
		got := PacketReadTimeout(tt.baud, tt.factor)
		diff := got - tt.want
		if diff < 0 {
			diff = -diff
		}
		if diff > time.Microsecond {
			t.Errorf("PacketReadTimeout(%d, %v) = %v, want %v", tt.baud, tt.factor, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig("/dev/ttyUSB0").Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}

	bad := []*Config{
		{Device: "", Baud: 9600},
		{Device: "/dev/ttyUSB0", Baud: 0},
		{Device: "/dev/ttyUSB0", Baud: 9600, ReadTimeout: -time.Second},
	}
	for _, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected %+v to be invalid", cfg)
		}
	}
}

func TestOpenNilConfig(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNativePortConfig(t *testing.T) {
	cfg := &Config{Device: "/dev/ttyUSB1", Baud: 9600, ReadTimeout: 250 * time.Millisecond}
	p := &NativePort{cfg: cfg}

	if p.Device() != "/dev/ttyUSB1" {
		t.Errorf("Device() = %q", p.Device())
	}
	if p.Baud() != 9600 {
		t.Errorf("Baud() = %d", p.Baud())
	}
	if p.ReadTimeout() != 250*time.Millisecond {
		t.Errorf("ReadTimeout() = %v", p.ReadTimeout())
	}
}
