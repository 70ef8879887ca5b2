// Package daemon lets other kapipe invocations inspect and steer a
// running replay over a Unix socket.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apex/log"
)

const (
	SocketName = "kapipe.sock"
	PidFile    = "kapipe.pid"
	LogFile    = "kapipe.log"
)

// ErrAlreadyRunning is returned by Start when another replay owns the
// control socket.
var ErrAlreadyRunning = errors.New("kapipe is already running")

// Status represents the current replay status
type Status struct {
	Running   bool      `json:"running"`
	Paused    bool      `json:"paused"`
	Healthy   bool      `json:"healthy"`
	StartTime time.Time `json:"start_time"`
	Uptime    string    `json:"uptime"`
	TargetURL string    `json:"target_url"`
	Policy    string    `json:"policy"`
	Workers   int       `json:"workers"`
	Conns     int       `json:"connections"`
	Passes    int       `json:"passes"`
	Requests  int64     `json:"requests"`
	Errors    int64     `json:"errors"`
	Pending   int       `json:"pending"`
	InFlight  int       `json:"in_flight"`
	P50       float64   `json:"p50_ms"`
	P99       float64   `json:"p99_ms"`
}

// Command represents a command sent to the daemon
type Command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a response from the daemon
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Controls are the hooks the daemon drives. Any of them may be nil.
type Controls struct {
	Status func() Status
	Pause  func(paused bool)
	Stop   func()
}

// Daemon serves the control socket of one running replay
type Daemon struct {
	dir      string
	controls Controls

	mu        sync.Mutex
	paused    bool
	startTime time.Time

	listener net.Listener
	logFile  *os.File
	wg       sync.WaitGroup
}

// GetRuntimeDir returns the runtime directory for kapipe
func GetRuntimeDir() string {
	// Use XDG_RUNTIME_DIR if available, otherwise use /tmp
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "kapipe")
	}
	return filepath.Join(os.TempDir(), "kapipe")
}

// GetSocketPath returns the full path to the socket file
func GetSocketPath() string {
	return filepath.Join(GetRuntimeDir(), SocketName)
}

// GetPidPath returns the full path to the pid file
func GetPidPath() string {
	return filepath.Join(GetRuntimeDir(), PidFile)
}

// GetLogPath returns the full path to the log file
func GetLogPath() string {
	return filepath.Join(GetRuntimeDir(), LogFile)
}

// New creates a daemon using the default runtime directory
func New(controls Controls) *Daemon {
	return NewInDir(GetRuntimeDir(), controls)
}

// NewInDir creates a daemon whose socket, pid and log files live in dir
func NewInDir(dir string, controls Controls) *Daemon {
	return &Daemon{dir: dir, controls: controls}
}

func (d *Daemon) socketPath() string { return filepath.Join(d.dir, SocketName) }
func (d *Daemon) pidPath() string    { return filepath.Join(d.dir, PidFile) }

// LogPath returns the log file of this daemon
func (d *Daemon) LogPath() string { return filepath.Join(d.dir, LogFile) }

// Start writes the pid file, opens the log file and begins serving the
// control socket.
func (d *Daemon) Start() error {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("failed to create runtime directory: %w", err)
	}
	if isRunning(d.socketPath()) {
		return ErrAlreadyRunning
	}

	logFile, err := os.OpenFile(d.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	d.logFile = logFile

	// Write PID file
	if err := os.WriteFile(d.pidPath(), []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to write pid file: %w", err)
	}

	// Remove a stale socket left by a crashed run
	os.Remove(d.socketPath())

	d.listener, err = net.Listen("unix", d.socketPath())
	if err != nil {
		logFile.Close()
		os.Remove(d.pidPath())
		return fmt.Errorf("failed to create socket: %w", err)
	}

	d.mu.Lock()
	d.startTime = time.Now()
	d.mu.Unlock()

	d.wg.Add(1)
	go d.acceptConnections()
	return nil
}

// LogFile returns the open log file, nil before Start.
func (d *Daemon) LogFile() *os.File {
	return d.logFile
}

// GetStatus returns the current status
func (d *Daemon) GetStatus() Status {
	var status Status
	if d.controls.Status != nil {
		status = d.controls.Status()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	status.Running = true
	status.Paused = d.paused
	status.StartTime = d.startTime
	if !d.startTime.IsZero() {
		status.Uptime = time.Since(d.startTime).Round(time.Second).String()
	}
	return status
}

// SetPaused pauses or resumes the replay
func (d *Daemon) SetPaused(paused bool) {
	d.mu.Lock()
	changed := d.paused != paused
	d.paused = paused
	d.mu.Unlock()

	if !changed {
		return
	}
	if d.controls.Pause != nil {
		d.controls.Pause(paused)
	}
	if paused {
		log.Info("[daemon] replay paused")
	} else {
		log.Info("[daemon] replay resumed")
	}
}

// Stop closes the socket and removes the runtime files
func (d *Daemon) Stop() {
	if d.listener != nil {
		d.listener.Close()
		d.wg.Wait()
	}

	os.Remove(d.socketPath())
	os.Remove(d.pidPath())

	if d.logFile != nil {
		d.logFile.Close()
	}
}

func (d *Daemon) acceptConnections() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.WithError(err).Warn("[daemon] accept failed")
			continue
		}
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd Command
	if err := decoder.Decode(&cmd); err != nil {
		encoder.Encode(Response{Success: false, Message: err.Error()})
		return
	}

	var resp Response

	switch cmd.Type {
	case "status":
		resp = Response{Success: true, Data: d.GetStatus()}

	case "pause":
		d.SetPaused(true)
		resp = Response{Success: true, Message: "Replay paused"}

	case "resume":
		d.SetPaused(false)
		resp = Response{Success: true, Message: "Replay resumed"}

	case "stop":
		if d.controls.Stop != nil {
			d.controls.Stop()
		}
		resp = Response{Success: true, Message: "Stopping replay..."}

	default:
		resp = Response{Success: false, Message: "Unknown command: " + cmd.Type}
	}

	encoder.Encode(resp)
}

// IsRunning checks if a replay is already running
func IsRunning() bool {
	return isRunning(GetSocketPath())
}

func isRunning(socket string) bool {
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// SendCommand sends a command to the running replay
func SendCommand(cmd Command) (*Response, error) {
	return sendCommand(context.Background(), GetSocketPath(), cmd)
}

func sendCommand(ctx context.Context, socket string, cmd Command) (*Response, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("kapipe not running: %w", err)
	}
	defer conn.Close()

	encoder := json.NewEncoder(conn)
	decoder := json.NewDecoder(conn)

	if err := encoder.Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &resp, nil
}

// DecodeStatus converts the Data of a status response.
func DecodeStatus(resp *Response) (Status, error) {
	var status Status
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return status, err
	}
	err = json.Unmarshal(raw, &status)
	return status, err
}
