package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/JH9707/Lane-Detect/internal/config"
	"github.com/JH9707/Lane-Detect/internal/debug"
	"github.com/JH9707/Lane-Detect/internal/hw/gpio"
	"github.com/JH9707/Lane-Detect/internal/hw/motor"
	"github.com/JH9707/Lane-Detect/internal/logic/drive"
	"github.com/JH9707/Lane-Detect/internal/serialport"
	"github.com/JH9707/Lane-Detect/internal/web"
)

// pollInterval throttles the reader goroutine when the link is quiet
// and the port read returned immediately (stdin EOF, mock streams).
const pollInterval = 5 * time.Millisecond

// commandQueueSize bounds web-injected commands waiting for dispatch.
const commandQueueSize = 16

// Overrides holds CLI values that replace config defaults.
// Zero values mean "use the config file".
type Overrides struct {
	Speed  int
	Device string
	Mock   bool
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web control page on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	speed := flag.Int("speed", 0, "override PWM duty (1-255)")
	device := flag.String("device", "", "override serial device path")
	mock := flag.Bool("mock", false, "force mock GPIO and stdin command input")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides (only non-zero values are applied; zero means "use config default")
	if err := validateCLIOverrides(*speed); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, Overrides{Speed: *speed, Device: *device, Mock: *mock})

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Speed", cfg.Defaults.Speed)

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize motors
	debug.Step(2, "Initializing motors")
	leftMotor := motor.New(gpioDriver, "left", motor.Config{
		SpeedPin: cfg.LeftMotor.SpeedPin,
		In1Pin:   cfg.LeftMotor.In1Pin,
		In2Pin:   cfg.LeftMotor.In2Pin,
	})
	debug.PrintStruct("Left motor config", cfg.LeftMotor)
	rightMotor := motor.New(gpioDriver, "right", motor.Config{
		SpeedPin: cfg.RightMotor.SpeedPin,
		In1Pin:   cfg.RightMotor.In1Pin,
		In2Pin:   cfg.RightMotor.In2Pin,
	})
	debug.PrintStruct("Right motor config", cfg.RightMotor)

	// Open the command link
	debug.Step(3, "Opening command link")
	var port serialport.Port
	if cfg.Defaults.MockSerial {
		port = serialport.Stdio()
	} else {
		port, err = serialport.Open(&serialport.Config{
			Device:      cfg.Serial.Device,
			Baud:        cfg.Serial.Baud,
			ReadTimeout: cfg.ReadTimeout(),
		})
		if err != nil {
			log.Fatalf("open serial port failed: %v", err)
		}
	}
	defer func() {
		if err := port.Close(); err != nil {
			log.Printf("closing command link failed: %v", err)
		}
	}()

	debug.Step(4, "Creating reader and motion controller")
	reader := drive.NewReader(port, port, cfg.AngleTimeout())
	ctrl := drive.NewController(leftMotor, rightMotor, cfg.Speed(), port)

	// One channel feeds the dispatch loop; the serial reader and the
	// web handler both enqueue here so the loop stays the single
	// owner of vehicle state.
	commands := make(chan drive.Command, commandQueueSize)

	go pollCommands(ctx, reader, commands)

	if p := webPort.port(); p > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		send := func(cmd drive.Command) error {
			select {
			case commands <- cmd:
				return nil
			default:
				return errors.New("command queue full")
			}
		}
		srv := web.NewServer(fmt.Sprintf(":%d", p), broadcaster, send, web.FormConfig{
			Speed:  cfg.Speed(),
			Device: cfg.Serial.Device,
			Mock:   cfg.Defaults.MockGPIO,
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Printf("web server: %v", err)
				cancel()
			}
		}()
	}

	debug.Summary("LaneCar ready")
	runDispatch(ctx, ctrl, commands)

	// Leave the motors safe on the way out; a quit command already
	// stopped them and the controller absorbs the extra stop.
	if err := ctrl.Apply(drive.Command{Kind: drive.CmdStop}); err != nil {
		log.Printf("final stop failed: %v", err)
	}
	debug.Section("Shutdown complete")
}

// pollCommands reads the command link and forwards decoded commands
// until the context is cancelled.
func pollCommands(ctx context.Context, reader *drive.Reader, out chan<- drive.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cmd, ok := reader.Poll()
		if !ok {
			time.Sleep(pollInterval)
			continue
		}
		select {
		case out <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

// runDispatch applies commands one at a time until shutdown. After a
// quit command the loop keeps draining input; the controller absorbs
// everything, so the vehicle can never move again in this process.
func runDispatch(ctx context.Context, ctrl *drive.Controller, commands <-chan drive.Command) {
	announced := false
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			if err := ctrl.Apply(cmd); err != nil {
				debug.Error(fmt.Errorf("apply %s: %w", cmd.Kind, err))
			}
			if ctrl.Terminated() && !announced {
				announced = true
				debug.Info("Controller terminated; draining further input")
			}
		}
	}
}

// validateCLIOverrides checks that a non-zero speed override is a valid
// PWM duty. Zero is ignored (it means "use config default").
func validateCLIOverrides(speed int) error {
	if speed != 0 && (speed < 1 || speed > 255) {
		return fmt.Errorf("speed must be between 1 and 255, got %d", speed)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, overrides Overrides) {
	if overrides.Speed > 0 {
		cfg.Defaults.Speed = overrides.Speed
	}
	if overrides.Device != "" {
		cfg.Serial.Device = overrides.Device
	}
	if overrides.Mock {
		cfg.Defaults.MockGPIO = true
		cfg.Defaults.MockSerial = true
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
