package motor

import (
	"github.com/JH9707/Lane-Detect/internal/debug"
	"github.com/JH9707/Lane-Detect/internal/hw/gpio"
)

// Config holds the hardware configuration for one L298N channel.
type Config struct {
	SpeedPin int // ENA/ENB enable line, driven with PWM (0-255 duty)
	In1Pin   int // direction control pin 1
	In2Pin   int // direction control pin 2
}

// Motor drives one DC motor through an L298N H-bridge channel:
// a PWM duty on the enable line sets the speed, the two IN pins
// select the rotation direction.
type Motor struct {
	gpio gpio.Driver
	cfg  Config
	name string
}

// New creates a DC motor controller and puts its pins in a safe state
// (duty 0, both direction pins LOW).
func New(g gpio.Driver, name string, cfg Config) *Motor {
	_ = g.SetupPin(cfg.SpeedPin, gpio.PWM)
	_ = g.SetupPin(cfg.In1Pin, gpio.Output)
	_ = g.SetupPin(cfg.In2Pin, gpio.Output)

	_ = g.WritePWM(cfg.SpeedPin, 0)
	_ = g.WritePin(cfg.In1Pin, gpio.Low)
	_ = g.WritePin(cfg.In2Pin, gpio.Low)

	return &Motor{
		gpio: g,
		cfg:  cfg,
		name: name,
	}
}

// Name returns the motor's label ("left"/"right").
func (m *Motor) Name() string {
	return m.name
}

// Drive applies a duty cycle and direction pattern to the motor.
// The duty is written before the direction pins, matching the order
// the original firmware drove the H-bridge in.
func (m *Motor) Drive(duty uint8, in1, in2 gpio.Level) error {
	debug.Motor(m.name, duty, in1, in2)

	if err := m.gpio.WritePWM(m.cfg.SpeedPin, duty); err != nil {
		return err
	}
	if err := m.gpio.WritePin(m.cfg.In1Pin, in1); err != nil {
		return err
	}
	return m.gpio.WritePin(m.cfg.In2Pin, in2)
}

// Stop zeroes the duty cycle. The direction pins are deliberately left
// untouched; with the enable line at 0 the H-bridge outputs float.
func (m *Motor) Stop() error {
	debug.Motor(m.name, 0, "-", "-")
	return m.gpio.WritePWM(m.cfg.SpeedPin, 0)
}
