package serialport

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/JH9707/Lane-Detect/internal/debug"
	"github.com/tarm/serial"
)

// Port represents a serial port. The abstraction allows swapping the
// real device for stdin/stdout in development mode or an in-memory
// stream in tests.
type Port interface {
	io.ReadWriteCloser

	// Flush discards any buffered data.
	Flush() error
}

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g., "/dev/ttyACM0")
	Device string

	// Baud rate; the driver station talks at 115200.
	Baud int

	// ReadTimeout bounds a single Read so the poll loop never blocks
	// indefinitely on a quiet link.
	ReadTimeout time.Duration
}

// NativePort wraps the tarm/serial implementation.
type NativePort struct {
	port *serial.Port
	cfg  *Config
}

// Open opens a native serial port.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	debug.Info("Opening serial port %s (%d baud)", cfg.Device, cfg.Baud)

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return &NativePort{
		port: port,
		cfg:  cfg,
	}, nil
}

// Read reads data from the serial port. A timed-out read returns 0 bytes.
func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write writes data to the serial port.
func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close closes the serial port.
func (p *NativePort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Flush discards unread input buffered by the driver.
func (p *NativePort) Flush() error {
	return p.port.Flush()
}

// StdioPort reads commands from stdin and echoes status to stdout.
// It preserves the bench-test workflow of typing commands at a
// terminal instead of wiring up the driver station.
type StdioPort struct{}

// Stdio returns a Port backed by the process's stdin/stdout.
func Stdio() Port {
	debug.Info("Using stdin/stdout as the command link (development mode)")
	return &StdioPort{}
}

func (p *StdioPort) Read(b []byte) (int, error) {
	return os.Stdin.Read(b)
}

func (p *StdioPort) Write(b []byte) (int, error) {
	return os.Stdout.Write(b)
}

// Close leaves stdin/stdout alone.
func (p *StdioPort) Close() error {
	return nil
}

func (p *StdioPort) Flush() error {
	return nil
}
