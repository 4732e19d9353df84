package drive

import (
	"fmt"
	"io"
	"time"

	"github.com/JH9707/Lane-Detect/internal/debug"
)

// Kind identifies a decoded command.
type Kind int

const (
	CmdUnknown Kind = iota
	CmdStop
	CmdQuit
	CmdForward
	CmdBackward
	CmdLeft
	CmdRight
	CmdTogglePause
	CmdSteerByAngle
)

func (k Kind) String() string {
	switch k {
	case CmdStop:
		return "stop"
	case CmdQuit:
		return "quit"
	case CmdForward:
		return "forward"
	case CmdBackward:
		return "backward"
	case CmdLeft:
		return "left"
	case CmdRight:
		return "right"
	case CmdTogglePause:
		return "toggle-pause"
	case CmdSteerByAngle:
		return "steer-by-angle"
	default:
		return "unknown"
	}
}

// Command is one decoded instruction from the driver station.
// Angle is only meaningful for CmdSteerByAngle.
type Command struct {
	Kind  Kind
	Angle int
}

// byteCommands maps single command characters to their kind.
// 'A' is not in this table: it starts a steer-by-angle sequence
// and needs a follow-on integer read.
var byteCommands = map[byte]Kind{
	'x': CmdStop,
	'q': CmdQuit,
	'w': CmdForward,
	's': CmdBackward,
	'a': CmdLeft,
	'd': CmdRight,
	'p': CmdTogglePause,
}

// DefaultAngleTimeout bounds the integer read after an 'A' byte, the
// same way the original firmware's parseInt timed out after a second.
const DefaultAngleTimeout = time.Second

// Reader assembles commands from a byte stream. Reads are expected to
// be bounded by the port's read timeout; a read that yields no data
// maps to "no command pending".
type Reader struct {
	in           io.Reader
	out          io.Writer // advisory status echo, may be nil
	angleTimeout time.Duration

	buf        [1]byte
	pending    byte
	hasPending bool
}

// NewReader creates a command reader over the given input stream.
// Advisory text (the angle echo) is written to out when non-nil.
// angleTimeout <= 0 selects DefaultAngleTimeout.
func NewReader(in io.Reader, out io.Writer, angleTimeout time.Duration) *Reader {
	if angleTimeout <= 0 {
		angleTimeout = DefaultAngleTimeout
	}
	return &Reader{
		in:           in,
		out:          out,
		angleTimeout: angleTimeout,
	}
}

// Poll consumes at most one pending command from the stream.
// It returns false when no byte is available or the byte was a line
// ending. Unrecognized bytes decode to CmdUnknown so the dispatcher
// can ignore them without the reader losing stream position.
func (r *Reader) Poll() (Command, bool) {
	b, ok := r.readByte()
	if !ok {
		return Command{}, false
	}

	// Line endings from the driver station are noise, not commands.
	if b == '\n' || b == '\r' {
		return Command{}, false
	}

	if b == 'A' {
		angle := r.readAngle()
		if r.out != nil {
			fmt.Fprintf(r.out, "Received angle: %d\n", angle)
		}
		debug.Verbose("Decoded steer-by-angle command (angle=%d)", angle)
		return Command{Kind: CmdSteerByAngle, Angle: angle}, true
	}

	kind, known := byteCommands[b]
	if !known {
		debug.Verbose("Unrecognized command byte 0x%02x", b)
		return Command{Kind: CmdUnknown}, true
	}

	debug.Verbose("Decoded command %q -> %s", string(rune(b)), kind)
	return Command{Kind: kind}, true
}

// readByte fetches one byte, honoring a previously unread terminator.
// ok is false when the underlying read produced no data (timeout, EOF).
func (r *Reader) readByte() (byte, bool) {
	if r.hasPending {
		r.hasPending = false
		return r.pending, true
	}

	n, _ := r.in.Read(r.buf[:])
	if n == 0 {
		return 0, false
	}
	debug.Serial(r.buf[0])
	return r.buf[0], true
}

// unread stashes a byte so the next Poll sees it first. Only the
// terminator of an angle literal is ever pushed back.
func (r *Reader) unread(b byte) {
	r.pending = b
	r.hasPending = true
}

// readAngle parses a signed decimal integer from the stream. Leading
// non-digit characters are skipped; a '-' immediately before the first
// digit negates the value. The first non-digit after the number ends
// the parse and is left in the stream. If no integer shows up before
// the timeout the angle defaults to 0.
func (r *Reader) readAngle() int {
	deadline := time.Now().Add(r.angleTimeout)

	var (
		value   int
		neg     bool
		started bool
	)

	for {
		b, ok := r.readByte()
		if !ok {
			if time.Now().After(deadline) {
				break
			}
			continue
		}

		switch {
		case b >= '0' && b <= '9':
			started = true
			value = value*10 + int(b-'0')
		case b == '-' && !started && !neg:
			neg = true
		default:
			if started {
				r.unread(b)
				if neg {
					return -value
				}
				return value
			}
			// Still skipping the prefix; a stray '-' that was not
			// followed by a digit loses its effect.
			neg = false
		}
	}

	if neg {
		return -value
	}
	return value
}
