package drive

import (
	"fmt"
	"io"

	"github.com/JH9707/Lane-Detect/internal/debug"
	"github.com/JH9707/Lane-Detect/internal/hw/gpio"
	"github.com/JH9707/Lane-Detect/internal/hw/motor"
)

// Pattern is the combined speed/direction configuration applied to
// both motors for one command.
type Pattern int

const (
	PatternStopped Pattern = iota
	PatternForward
	PatternBackward
	PatternLeft
	PatternRight
)

func (p Pattern) String() string {
	switch p {
	case PatternForward:
		return "forward"
	case PatternBackward:
		return "backward"
	case PatternLeft:
		return "left"
	case PatternRight:
		return "right"
	default:
		return "stopped"
	}
}

// dirPins is one motor's IN1/IN2 (or IN3/IN4) direction pair.
type dirPins struct {
	in1, in2 gpio.Level
}

// patternPins is the single source of truth for the pin-level drive
// patterns. The values reproduce the original car's wiring exactly,
// including the pivot turns where both motors get the same pair; that
// only turns the car because of how the motor leads are soldered.
// Do not re-derive these from steering kinematics.
var patternPins = map[Pattern]struct{ left, right dirPins }{
	PatternForward:  {left: dirPins{gpio.Low, gpio.High}, right: dirPins{gpio.High, gpio.Low}},
	PatternBackward: {left: dirPins{gpio.High, gpio.Low}, right: dirPins{gpio.Low, gpio.High}},
	PatternLeft:     {left: dirPins{gpio.Low, gpio.High}, right: dirPins{gpio.Low, gpio.High}},
	PatternRight:    {left: dirPins{gpio.High, gpio.Low}, right: dirPins{gpio.High, gpio.Low}},
}

// Steering angles within (-angleThreshold, +angleThreshold) keep the
// car going straight; beyond it the car pivots toward the lane.
const angleThreshold = 10

// Controller owns the vehicle state and translates commands into
// drive patterns on the two motors. It is the only writer of motor
// outputs; the dispatch loop feeds it one command at a time.
type Controller struct {
	left, right *motor.Motor
	speed       uint8
	status      io.Writer // advisory status lines, may be nil

	paused     bool
	terminated bool
	pattern    Pattern
}

// NewController creates the motion controller. speed is the fixed PWM
// duty used for every non-stopped pattern.
func NewController(left, right *motor.Motor, speed uint8, status io.Writer) *Controller {
	return &Controller{
		left:   left,
		right:  right,
		speed:  speed,
		status: status,
	}
}

// Paused reports whether movement commands are currently gated off.
func (c *Controller) Paused() bool { return c.paused }

// Terminated reports whether a quit command has been processed.
// Once terminated the controller absorbs every further command.
func (c *Controller) Terminated() bool { return c.terminated }

// Pattern returns the last drive pattern issued to the motors.
func (c *Controller) Pattern() Pattern { return c.pattern }

// Speed returns the configured PWM duty.
func (c *Controller) Speed() uint8 { return c.speed }

// Apply executes one command against the current state. Movement
// commands are ignored while paused; everything is ignored once
// terminated. Unknown commands never touch state or motors.
func (c *Controller) Apply(cmd Command) error {
	if c.terminated {
		debug.Verbose("Ignoring %s command: controller terminated", cmd.Kind)
		return nil
	}

	debug.Dispatch(cmd.Kind.String())

	switch cmd.Kind {
	case CmdStop:
		if err := c.drive(PatternStopped); err != nil {
			return err
		}
		c.report("Car stopped.")
		return nil

	case CmdQuit:
		if err := c.drive(PatternStopped); err != nil {
			return err
		}
		c.report("Program exiting...")
		c.terminated = true
		debug.Info("Quit received; no further commands will be processed")
		return nil

	case CmdForward:
		if c.paused {
			return nil
		}
		return c.drive(PatternForward)

	case CmdBackward:
		if c.paused {
			return nil
		}
		return c.drive(PatternBackward)

	case CmdLeft:
		if c.paused {
			return nil
		}
		return c.drive(PatternLeft)

	case CmdRight:
		if c.paused {
			return nil
		}
		return c.drive(PatternRight)

	case CmdTogglePause:
		if c.paused {
			c.paused = false
			c.report("Resuming car movement...")
			debug.Info("Resumed; motors stay on the last commanded pattern")
			return nil
		}
		if err := c.drive(PatternStopped); err != nil {
			return err
		}
		c.paused = true
		c.report("Car paused.")
		return nil

	case CmdSteerByAngle:
		if c.paused {
			return nil
		}
		switch {
		case cmd.Angle > angleThreshold:
			return c.drive(PatternLeft)
		case cmd.Angle < -angleThreshold:
			return c.drive(PatternRight)
		default:
			return c.drive(PatternForward)
		}

	default:
		// Unknown command: silent no-op.
		return nil
	}
}

// drive applies a pattern to both motors and records it. Stopped only
// zeroes the enable lines; the direction pins keep their last values.
func (c *Controller) drive(p Pattern) error {
	debug.Live("Driving pattern: %s", p)

	if p == PatternStopped {
		if err := c.left.Stop(); err != nil {
			return err
		}
		if err := c.right.Stop(); err != nil {
			return err
		}
		c.pattern = p
		return nil
	}

	pins := patternPins[p]
	if err := c.left.Drive(c.speed, pins.left.in1, pins.left.in2); err != nil {
		return err
	}
	if err := c.right.Drive(c.speed, pins.right.in1, pins.right.in2); err != nil {
		return err
	}
	c.pattern = p
	return nil
}

// report emits an advisory status line to the output stream.
func (c *Controller) report(msg string) {
	if c.status != nil {
		fmt.Fprintln(c.status, msg)
	}
	debug.Live("%s", msg)
}
