package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps how much of a config file Load will accept.
const MaxConfigFileBytes = 1 << 20

// MotorConfig holds the pin assignment for one L298N channel.
type MotorConfig struct {
	SpeedPin int `yaml:"speed_pin"` // ENA/ENB enable line (PWM)
	In1Pin   int `yaml:"in1_pin"`   // direction control pin 1
	In2Pin   int `yaml:"in2_pin"`   // direction control pin 2
}

// SerialConfig describes the command link to the driver station.
type SerialConfig struct {
	Device        string `yaml:"device"`          // e.g., "/dev/ttyACM0"
	Baud          int    `yaml:"baud"`            // default 115200
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // per-read bound for the poll loop
}

// DefaultsConfig contains generic parameters (speed, debug, mocks).
type DefaultsConfig struct {
	Speed          int  `yaml:"speed"`            // PWM duty 0-255, default 155
	AngleTimeoutMs int  `yaml:"angle_timeout_ms"` // how long to wait for the integer after 'A'
	DebugLevel     int  `yaml:"debug_level"`      // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO       bool `yaml:"mock_gpio"`        // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	MockSerial     bool `yaml:"mock_serial"`      // read commands from stdin instead of a serial device
}

// Config aggregates all application configuration.
type Config struct {
	LeftMotor  MotorConfig    `yaml:"left_motor"`
	RightMotor MotorConfig    `yaml:"right_motor"`
	Serial     SerialConfig   `yaml:"serial"`
	Defaults   DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path points at a .yaml file directly
// inside a configs/ directory. It rejects traversal out of the config
// tree before anything is read.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have a .yaml extension, got %q", path)
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory, got %q", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	for _, m := range []struct {
		name string
		mc   MotorConfig
	}{
		{"left_motor", cfg.LeftMotor},
		{"right_motor", cfg.RightMotor},
	} {
		if m.mc.SpeedPin <= 0 || m.mc.In1Pin <= 0 || m.mc.In2Pin <= 0 {
			return nil, fmt.Errorf("%s: speed_pin, in1_pin and in2_pin are required", m.name)
		}
	}
	if cfg.Defaults.Speed < 0 || cfg.Defaults.Speed > 255 {
		return nil, fmt.Errorf("speed must be between 0 and 255, got %d", cfg.Defaults.Speed)
	}
	if cfg.Defaults.Speed == 0 {
		cfg.Defaults.Speed = 155 // the duty the car was tuned for
	}
	if cfg.Serial.Device == "" {
		cfg.Serial.Device = "/dev/ttyACM0"
	}
	if cfg.Serial.Baud <= 0 {
		cfg.Serial.Baud = 115200 // driver station rate
	}
	if cfg.Serial.ReadTimeoutMs <= 0 {
		cfg.Serial.ReadTimeoutMs = 100
	}
	if cfg.Defaults.AngleTimeoutMs <= 0 {
		cfg.Defaults.AngleTimeoutMs = 1000
	}

	return &cfg, nil
}

// Speed returns the PWM duty as the motor layer expects it.
func (c *Config) Speed() uint8 {
	return uint8(c.Defaults.Speed)
}

// ReadTimeout returns the per-read bound on the serial link.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond
}

// AngleTimeout returns how long the reader waits for an angle literal.
func (c *Config) AngleTimeout() time.Duration {
	return time.Duration(c.Defaults.AngleTimeoutMs) * time.Millisecond
}
