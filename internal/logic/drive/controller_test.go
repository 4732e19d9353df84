package drive

import (
	"bytes"
	"strings"
	"testing"

	"github.com/JH9707/Lane-Detect/internal/hw/gpio"
	"github.com/JH9707/Lane-Detect/internal/hw/motor"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls []gpioCall
}

type gpioCall struct {
	op    string // "setup", "write", "pwm"
	pin   int
	level gpio.Level
	duty  uint8
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) WritePWM(pin int, duty uint8) error {
	d.calls = append(d.calls, gpioCall{op: "pwm", pin: pin, duty: duty})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error {
	return nil
}

func (d *recordingDriver) reset() {
	d.calls = nil
}

// levelOnPin returns the last level written to a direction pin.
func (d *recordingDriver) levelOnPin(pin int) (gpio.Level, bool) {
	for i := len(d.calls) - 1; i >= 0; i-- {
		if d.calls[i].op == "write" && d.calls[i].pin == pin {
			return d.calls[i].level, true
		}
	}
	return gpio.Low, false
}

// dutyOnPin returns the last duty written to an enable pin.
func (d *recordingDriver) dutyOnPin(pin int) (uint8, bool) {
	for i := len(d.calls) - 1; i >= 0; i-- {
		if d.calls[i].op == "pwm" && d.calls[i].pin == pin {
			return d.calls[i].duty, true
		}
	}
	return 0, false
}

// The original car's pin assignment: left motor ENA=11/IN1=10/IN2=9,
// right motor ENB=6/IN3=8/IN4=7.
const (
	pinENA = 11
	pinIN1 = 10
	pinIN2 = 9
	pinIN3 = 8
	pinIN4 = 7
	pinENB = 6
)

const testSpeed = 155

func newTestCar() (*Controller, *recordingDriver) {
	drv := &recordingDriver{}
	left := motor.New(drv, "left", motor.Config{SpeedPin: pinENA, In1Pin: pinIN1, In2Pin: pinIN2})
	right := motor.New(drv, "right", motor.Config{SpeedPin: pinENB, In1Pin: pinIN3, In2Pin: pinIN4})
	ctrl := NewController(left, right, testSpeed, nil)
	drv.reset()
	return ctrl, drv
}

// expectPattern verifies the pin-level state the driver last saw.
func expectPattern(t *testing.T, drv *recordingDriver, in1, in2, in3, in4 gpio.Level, dutyA, dutyB uint8) {
	t.Helper()
	checks := []struct {
		name string
		pin  int
		want gpio.Level
	}{
		{"IN1", pinIN1, in1},
		{"IN2", pinIN2, in2},
		{"IN3", pinIN3, in3},
		{"IN4", pinIN4, in4},
	}
	for _, c := range checks {
		got, ok := drv.levelOnPin(c.pin)
		if !ok {
			t.Fatalf("%s (pin %d): no write recorded", c.name, c.pin)
		}
		if got != c.want {
			t.Errorf("%s (pin %d) = %v, want %v", c.name, c.pin, got, c.want)
		}
	}
	if got, ok := drv.dutyOnPin(pinENA); !ok || got != dutyA {
		t.Errorf("ENA duty = %d (recorded=%v), want %d", got, ok, dutyA)
	}
	if got, ok := drv.dutyOnPin(pinENB); !ok || got != dutyB {
		t.Errorf("ENB duty = %d (recorded=%v), want %d", got, ok, dutyB)
	}
}

// ---------- Drive pattern wiring ----------

func TestController_ForwardPattern(t *testing.T) {
	ctrl, drv := newTestCar()
	if err := ctrl.Apply(Command{Kind: CmdForward}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	expectPattern(t, drv, gpio.Low, gpio.High, gpio.High, gpio.Low, testSpeed, testSpeed)
	if ctrl.Pattern() != PatternForward {
		t.Errorf("pattern = %v, want forward", ctrl.Pattern())
	}
}

func TestController_BackwardPattern(t *testing.T) {
	ctrl, drv := newTestCar()
	if err := ctrl.Apply(Command{Kind: CmdBackward}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	expectPattern(t, drv, gpio.High, gpio.Low, gpio.Low, gpio.High, testSpeed, testSpeed)
}

func TestController_LeftPattern(t *testing.T) {
	ctrl, drv := newTestCar()
	if err := ctrl.Apply(Command{Kind: CmdLeft}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Both motors get LOW,HIGH; the pivot comes from the lead wiring.
	expectPattern(t, drv, gpio.Low, gpio.High, gpio.Low, gpio.High, testSpeed, testSpeed)
}

func TestController_RightPattern(t *testing.T) {
	ctrl, drv := newTestCar()
	if err := ctrl.Apply(Command{Kind: CmdRight}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	expectPattern(t, drv, gpio.High, gpio.Low, gpio.High, gpio.Low, testSpeed, testSpeed)
}

func TestController_StopOnlyZeroesDuty(t *testing.T) {
	ctrl, drv := newTestCar()
	if err := ctrl.Apply(Command{Kind: CmdStop}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, c := range drv.calls {
		if c.op == "write" {
			t.Fatalf("stop must not touch direction pins, wrote pin %d", c.pin)
		}
	}
	if got, _ := drv.dutyOnPin(pinENA); got != 0 {
		t.Errorf("ENA duty = %d, want 0", got)
	}
	if got, _ := drv.dutyOnPin(pinENB); got != 0 {
		t.Errorf("ENB duty = %d, want 0", got)
	}
}

// ---------- Unknown commands ----------

func TestController_UnknownIsNoOp(t *testing.T) {
	ctrl, drv := newTestCar()
	if err := ctrl.Apply(Command{Kind: CmdUnknown}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(drv.calls) != 0 {
		t.Errorf("unknown command should cause no GPIO activity, got %d calls", len(drv.calls))
	}
	if ctrl.Paused() || ctrl.Terminated() {
		t.Error("unknown command must not change state")
	}
}

func TestReaderController_UnrecognizedBytesAreNoOps(t *testing.T) {
	ctrl, drv := newTestCar()
	r := NewReader(strings.NewReader("zZ09+-*! "), nil, testAngleTimeout)
	for {
		cmd, ok := r.Poll()
		if !ok {
			break
		}
		if err := ctrl.Apply(cmd); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if len(drv.calls) != 0 {
		t.Errorf("unrecognized bytes should leave motors untouched, got %d GPIO calls", len(drv.calls))
	}
	if ctrl.Pattern() != PatternStopped {
		t.Errorf("pattern = %v, want stopped", ctrl.Pattern())
	}
}

// ---------- Idempotence ----------

func TestController_StopTwiceIdempotent(t *testing.T) {
	ctrl, drv := newTestCar()
	if err := ctrl.Apply(Command{Kind: CmdStop}); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	first := len(drv.calls)
	if err := ctrl.Apply(Command{Kind: CmdStop}); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if ctrl.Pattern() != PatternStopped {
		t.Errorf("pattern = %v, want stopped", ctrl.Pattern())
	}
	// Second stop re-issues the same duty-0 writes and nothing else.
	if len(drv.calls) != 2*first {
		t.Errorf("second stop should repeat the same %d calls, total = %d", first, len(drv.calls))
	}
	for _, c := range drv.calls {
		if c.op != "pwm" || c.duty != 0 {
			t.Errorf("unexpected call during stop: %+v", c)
		}
	}
}

// ---------- Pause gating ----------

func TestController_PauseGatesMovement(t *testing.T) {
	ctrl, drv := newTestCar()
	if err := ctrl.Apply(Command{Kind: CmdTogglePause}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !ctrl.Paused() {
		t.Fatal("controller should be paused")
	}
	drv.reset()

	gated := []Command{
		{Kind: CmdForward},
		{Kind: CmdBackward},
		{Kind: CmdLeft},
		{Kind: CmdRight},
		{Kind: CmdSteerByAngle, Angle: 45},
	}
	for _, cmd := range gated {
		if err := ctrl.Apply(cmd); err != nil {
			t.Fatalf("Apply(%v): %v", cmd.Kind, err)
		}
	}
	if len(drv.calls) != 0 {
		t.Errorf("paused controller should not actuate, got %d GPIO calls", len(drv.calls))
	}
	if ctrl.Pattern() != PatternStopped {
		t.Errorf("pattern = %v, want stopped (from the pause-induced stop)", ctrl.Pattern())
	}
}

func TestController_StopWorksWhilePaused(t *testing.T) {
	ctrl, drv := newTestCar()
	ctrl.Apply(Command{Kind: CmdTogglePause})
	drv.reset()

	if err := ctrl.Apply(Command{Kind: CmdStop}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got, ok := drv.dutyOnPin(pinENA); !ok || got != 0 {
		t.Error("stop should still actuate while paused")
	}
}

// ---------- Toggle symmetry ----------

func TestController_PauseToggleSymmetry(t *testing.T) {
	ctrl, drv := newTestCar()

	if err := ctrl.Apply(Command{Kind: CmdTogglePause}); err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !ctrl.Paused() {
		t.Fatal("should be paused after first toggle")
	}
	drv.reset()

	if err := ctrl.Apply(Command{Kind: CmdTogglePause}); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if ctrl.Paused() {
		t.Error("should be resumed after second toggle")
	}
	// Resume must not re-issue a drive: motors stay as last commanded.
	if len(drv.calls) != 0 {
		t.Errorf("resume should cause no GPIO activity, got %d calls", len(drv.calls))
	}
}

// ---------- Angle thresholding ----------

func TestController_AngleThresholds(t *testing.T) {
	cases := []struct {
		angle int
		want  Pattern
	}{
		{11, PatternLeft},
		{-11, PatternRight},
		{5, PatternForward},
		{10, PatternForward},
		{-10, PatternForward},
		{0, PatternForward},
	}
	for _, tc := range cases {
		ctrl, _ := newTestCar()
		if err := ctrl.Apply(Command{Kind: CmdSteerByAngle, Angle: tc.angle}); err != nil {
			t.Fatalf("angle %d: %v", tc.angle, err)
		}
		if ctrl.Pattern() != tc.want {
			t.Errorf("angle %d: pattern = %v, want %v", tc.angle, ctrl.Pattern(), tc.want)
		}
	}
}

// ---------- Terminal absorption ----------

func TestController_QuitIsTerminal(t *testing.T) {
	ctrl, drv := newTestCar()
	if err := ctrl.Apply(Command{Kind: CmdQuit}); err != nil {
		t.Fatalf("quit: %v", err)
	}
	if !ctrl.Terminated() {
		t.Fatal("controller should be terminated")
	}
	drv.reset()

	after := []Command{
		{Kind: CmdForward},
		{Kind: CmdStop},
		{Kind: CmdTogglePause},
		{Kind: CmdSteerByAngle, Angle: 90},
		{Kind: CmdQuit},
	}
	for _, cmd := range after {
		if err := ctrl.Apply(cmd); err != nil {
			t.Fatalf("Apply(%v) after quit: %v", cmd.Kind, err)
		}
	}
	if len(drv.calls) != 0 {
		t.Errorf("terminated controller must never actuate, got %d GPIO calls", len(drv.calls))
	}
	if ctrl.Pattern() != PatternStopped {
		t.Errorf("pattern = %v, want stopped", ctrl.Pattern())
	}
}

func TestController_QuitReportsAndStops(t *testing.T) {
	var out bytes.Buffer
	drv := &recordingDriver{}
	left := motor.New(drv, "left", motor.Config{SpeedPin: pinENA, In1Pin: pinIN1, In2Pin: pinIN2})
	right := motor.New(drv, "right", motor.Config{SpeedPin: pinENB, In1Pin: pinIN3, In2Pin: pinIN4})
	ctrl := NewController(left, right, testSpeed, &out)
	drv.reset()

	if err := ctrl.Apply(Command{Kind: CmdQuit}); err != nil {
		t.Fatalf("quit: %v", err)
	}
	if got := out.String(); got != "Program exiting...\n" {
		t.Errorf("status = %q, want \"Program exiting...\\n\"", got)
	}
	if got, _ := drv.dutyOnPin(pinENA); got != 0 {
		t.Error("quit should stop the motors before terminating")
	}
}

// ---------- Status lines ----------

func TestController_StatusLines(t *testing.T) {
	var out bytes.Buffer
	drv := &recordingDriver{}
	left := motor.New(drv, "left", motor.Config{SpeedPin: pinENA, In1Pin: pinIN1, In2Pin: pinIN2})
	right := motor.New(drv, "right", motor.Config{SpeedPin: pinENB, In1Pin: pinIN3, In2Pin: pinIN4})
	ctrl := NewController(left, right, testSpeed, &out)

	ctrl.Apply(Command{Kind: CmdStop})
	ctrl.Apply(Command{Kind: CmdTogglePause})
	ctrl.Apply(Command{Kind: CmdTogglePause})

	want := "Car stopped.\nCar paused.\nResuming car movement...\n"
	if got := out.String(); got != want {
		t.Errorf("status transcript = %q, want %q", got, want)
	}
}

// ---------- End to end ----------

func TestEndToEnd_PauseResumeSequence(t *testing.T) {
	ctrl, drv := newTestCar()
	r := NewReader(strings.NewReader("wpwpx"), nil, testAngleTimeout)

	type step struct {
		pattern Pattern
		paused  bool
	}
	want := []step{
		{PatternForward, false}, // w
		{PatternStopped, true},  // p: pause forces a stop
		{PatternStopped, true},  // w: gated off
		{PatternStopped, false}, // p: resume, no drive change
		{PatternStopped, false}, // x
	}

	for i, w := range want {
		cmd, ok := r.Poll()
		if !ok {
			t.Fatalf("step %d: expected a command", i)
		}
		if err := ctrl.Apply(cmd); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if ctrl.Pattern() != w.pattern {
			t.Errorf("step %d: pattern = %v, want %v", i, ctrl.Pattern(), w.pattern)
		}
		if ctrl.Paused() != w.paused {
			t.Errorf("step %d: paused = %v, want %v", i, ctrl.Paused(), w.paused)
		}
	}

	// Final motor output is the stopped pattern.
	if got, _ := drv.dutyOnPin(pinENA); got != 0 {
		t.Errorf("final ENA duty = %d, want 0", got)
	}
	if got, _ := drv.dutyOnPin(pinENB); got != 0 {
		t.Errorf("final ENB duty = %d, want 0", got)
	}
}
