package serial

import (
	"fmt"
	"time"

	"armlink/protocol"
)

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate
	Baud int

	// Read timeout (0 = blocking). A read that times out tells the
	// transport to drop any partial frame it is holding.
	ReadTimeout time.Duration
}

// Default connection settings
const (
	DefaultDevice        = "/dev/ttyACM0"
	DefaultBaud          = 115200
	DefaultTimeoutFactor = 10.0
)

// DefaultConfig returns the default configuration for a device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: PacketReadTimeout(DefaultBaud, DefaultTimeoutFactor),
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("serial: device is required")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("serial: invalid baud rate %d", c.Baud)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("serial: negative read timeout %v", c.ReadTimeout)
	}
	return nil
}

// PacketReadTimeout returns how long to wait for one frame at the given baud
// rate: one frame's transfer time scaled by factor. A factor near 1.1 suits
// native USB CDC devices; FTDI bridges need something closer to 10.
func PacketReadTimeout(baud int, factor float64) time.Duration {
	if baud <= 0 || factor <= 0 {
		return 0
	}
	seconds := float64(protocol.MessageLength) / float64(baud) * factor
	timeout := time.Duration(seconds * float64(time.Second))
	// The termios timer has 100ms resolution and tarm/serial rounds down,
	// so anything shorter would become a blocking read.
	if timeout < 100*time.Millisecond {
		timeout = 100 * time.Millisecond
	}
	return timeout
}
