package console

import (
	"bytes"
	"errors"
	"sync"

	"tinygo.org/x/drivers"

	"github.com/ardnew/soundbox/pkg"
)

// BufferSize is the console line buffer size, terminator included.
const BufferSize = 256

// PortState is the latched serial port state.
type PortState int

// Port states.
const (
	PortClosed PortState = iota
	PortOpen
)

// String returns the state name.
func (s PortState) String() string {
	switch s {
	case PortClosed:
		return "closed"
	case PortOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Listener is notified on port state edges.
type Listener interface {
	PortOpened()
	PortClosed()
}

// Bridge connects a serial port to an executor.
type Bridge struct {
	mu       sync.Mutex
	port     drivers.UART
	exec     Executor
	listener Listener
	state    PortState
	buf      [BufferSize]byte
}

// NewBridge returns a bridge in the closed state. listener may be nil.
func NewBridge(port drivers.UART, exec Executor, listener Listener) *Bridge {
	return &Bridge{port: port, exec: exec, listener: listener}
}

// State returns the latched port state.
func (b *Bridge) State() PortState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether a terminal holds the port open.
func (b *Bridge) IsOpen() bool { return b.State() == PortOpen }

// DataAvailable reads one buffer of received bytes and executes it as a
// line. itf is the CDC interface that raised the event.
func (b *Bridge) DataAvailable(itf uint8) {
	b.mu.Lock()
	want := pkg.Clamp(b.port.Buffered(), 1, BufferSize-1)
	n, err := b.port.Read(b.buf[:want])
	line := string(bytes.TrimRight(b.buf[:n], "\r\n"))
	b.mu.Unlock()

	if err != nil {
		pkg.LogWarn(pkg.ComponentConsole, "serial read failed", "itf", itf, "error", err)
		return
	}
	if line == "" {
		pkg.LogDebug(pkg.ComponentConsole, "empty line ignored", "itf", itf, "bytes", n)
		return
	}

	pkg.LogDebug(pkg.ComponentConsole, "command received", "itf", itf, "line", line)
	status, err := b.exec.Execute(b.port, line)
	switch {
	case errors.Is(err, pkg.ErrEmptyLine):
		return
	case err != nil:
		pkg.LogWarn(pkg.ComponentConsole, "command failed", "line", line, "status", status, "error", err)
	case status != StatusOK:
		pkg.LogWarn(pkg.ComponentConsole, "command exited", "line", line, "status", status)
	default:
		pkg.LogInfo(pkg.ComponentConsole, "command exited", "line", line, "status", status)
	}
}

// LineStateChanged latches the port state from DTR. Only an edge notifies
// the listener; repeated levels are ignored.
func (b *Bridge) LineStateChanged(dtr bool) {
	b.mu.Lock()
	var notify func()
	switch {
	case dtr && b.state == PortClosed:
		b.state = PortOpen
		if b.listener != nil {
			notify = b.listener.PortOpened
		}
	case !dtr && b.state == PortOpen:
		b.state = PortClosed
		if b.listener != nil {
			notify = b.listener.PortClosed
		}
	default:
		b.mu.Unlock()
		pkg.LogDebug(pkg.ComponentConsole, "line state unchanged", "dtr", dtr)
		return
	}
	state := b.state
	b.mu.Unlock()

	pkg.LogInfo(pkg.ComponentConsole, "serial port "+state.String())
	if notify != nil {
		notify()
	}
}
