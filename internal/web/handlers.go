package web

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/JH9707/Lane-Detect/internal/logic/drive"
)

// CommandRequest is the body of POST /command: a single command
// character plus the angle for "A".
type CommandRequest struct {
	Command string `json:"command"`
	Angle   int    `json:"angle,omitempty"`
}

// SendCommandFunc enqueues a decoded command on the dispatch loop.
// The handler never touches vehicle state itself; the loop stays the
// only state owner.
type SendCommandFunc func(cmd drive.Command) error

// FormConfig holds the effective settings shown on the control page.
type FormConfig struct {
	Speed  uint8  `json:"speed"`
	Device string `json:"device"`
	Mock   bool   `json:"mock"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	SendCommand SendCommandFunc
	Defaults    FormConfig
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If sendCommand is nil, POST /command will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, sendCommand SendCommandFunc, defaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		SendCommand: sendCommand,
		Defaults:    defaults,
		staticFS:    staticFS,
	}
}

// commandKinds mirrors the serial decoder's command set for web input.
var commandKinds = map[string]drive.Kind{
	"x": drive.CmdStop,
	"q": drive.CmdQuit,
	"w": drive.CmdForward,
	"s": drive.CmdBackward,
	"a": drive.CmdLeft,
	"d": drive.CmdRight,
	"p": drive.CmdTogglePause,
	"A": drive.CmdSteerByAngle,
}

// ValidateCommand checks that a request names a known command character.
func ValidateCommand(req CommandRequest) (drive.Command, error) {
	kind, ok := commandKinds[req.Command]
	if !ok {
		return drive.Command{}, fmt.Errorf("unknown command %q", req.Command)
	}
	cmd := drive.Command{Kind: kind}
	if kind == drive.CmdSteerByAngle {
		cmd.Angle = req.Angle
	}
	return cmd, nil
}

// HandleConfig returns the effective settings as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Defaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCommand handles POST /command to inject a command into the
// dispatch loop, with the same validation the serial decoder applies.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CommandRequest
	body := http.MaxBytesReader(w, r.Body, 1<<10)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	cmd, err := ValidateCommand(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.SendCommand == nil {
		http.Error(w, "command dispatch not configured", http.StatusServiceUnavailable)
		return
	}

	if err := h.SendCommand(cmd); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued", "command": cmd.Kind.String()})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
