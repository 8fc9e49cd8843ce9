// Package serial opens the byte stream that carries framed envelopes to the peripheral board.
package serial

import (
	"io"
	"net"
)

// Port is a byte stream to the peripheral side.
// Implementations:
//   - NativePort (github.com/tarm/serial)
//   - pipePort, an in-memory pair for simulation and tests
type Port interface {
	io.ReadWriteCloser

	// Flush discards any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the configuration used when only a device is given.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

type pipePort struct {
	net.Conn
}

func (p pipePort) Flush() error {
	return nil
}

// Pair returns two connected in-memory ports. Writes on one end block until the other reads.
func Pair() (Port, Port) {
	a, b := net.Pipe()
	return pipePort{a}, pipePort{b}
}
