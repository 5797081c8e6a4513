// Package sim provides an in-memory [transport.Transport] for tests and host
// simulation. A simulated host drives it through methods that stand in for
// USB traffic: control requests, CDC bytes, isochronous audio packets and
// mass-storage block commands. Events queue until the device's service loop
// calls Task, which dispatches them in arrival order.
package sim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/soundbox/descriptor"
	"github.com/ardnew/soundbox/pkg"
	"github.com/ardnew/soundbox/transport"
)

// DefaultRxCapacity matches a typical CDC receive FIFO.
const DefaultRxCapacity = 512

type eventKind uint8

const (
	eventSetup eventKind = iota
	eventData
	eventAudio
	eventMedium
	eventBlockRead
	eventBlockWrite
)

type result struct {
	data []byte
	err  error
}

type event struct {
	kind   eventKind
	itf    uint8
	setup  transport.SetupPacket
	data   []byte
	loaded bool
	lba    uint32
	count  uint32
	done   chan result
}

// Transport is a simulated USB device controller plus host.
type Transport struct {
	mutex sync.Mutex

	set        *descriptor.Set
	handler    transport.Handler
	dispatcher *transport.Dispatcher

	events []event
	rx     []byte
	tx     bytes.Buffer

	rxCapacity int
	initErr    error
	running    bool
	connected  bool

	// stalls counts control requests the device rejected.
	stalls int
}

var _ transport.Transport = (*Transport)(nil)

// New creates a simulated transport.
func New() *Transport {
	return &Transport{rxCapacity: DefaultRxCapacity}
}

// SetRxCapacity sets the CDC receive FIFO size. Bytes the host sends beyond
// it are refused.
func (t *Transport) SetRxCapacity(n int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.rxCapacity = n
}

// FailInit makes the next Init fail with err.
func (t *Transport) FailInit(err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.initErr = err
}

// Register installs the class event handler.
func (t *Transport) Register(h transport.Handler) error {
	if h == nil {
		return pkg.ErrInvalidParameter
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.running {
		return pkg.ErrAlreadyRunning
	}
	t.handler = h
	return nil
}

// Init attaches the simulated device to the simulated host.
func (t *Transport) Init(ctx context.Context, set *descriptor.Set) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", pkg.ErrTransportInit, err)
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()

	switch {
	case t.running:
		return pkg.ErrAlreadyRunning
	case t.handler == nil:
		return fmt.Errorf("%w: %w", pkg.ErrTransportInit, pkg.ErrNoHandler)
	case set == nil:
		return fmt.Errorf("%w: %w", pkg.ErrTransportInit, pkg.ErrInvalidParameter)
	case t.initErr != nil:
		err := t.initErr
		t.initErr = nil
		return fmt.Errorf("%w: %w", pkg.ErrTransportInit, err)
	}

	t.set = set
	t.dispatcher = transport.NewDispatcher(set, t.handler)
	t.running = true
	t.connected = true

	pkg.LogInfo(pkg.ComponentTransport, "simulated device attached",
		"vid", fmt.Sprintf("0x%04X", set.Device.VendorID),
		"pid", fmt.Sprintf("0x%04X", set.Device.ProductID),
		"interfaces", set.Map.Count)
	return nil
}

// Stop detaches the device. Pending host requests fail.
func (t *Transport) Stop() error {
	t.mutex.Lock()
	if !t.running {
		t.mutex.Unlock()
		return pkg.ErrNotRunning
	}
	t.running = false
	t.connected = false
	pending := t.events
	t.events = nil
	t.mutex.Unlock()

	for _, ev := range pending {
		if ev.done != nil {
			ev.done <- result{err: pkg.ErrNotRunning}
		}
	}
	return nil
}

// Connected reports whether the device is attached.
func (t *Transport) Connected() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.connected
}

// Task dispatches every event queued before the call.
func (t *Transport) Task() bool {
	t.mutex.Lock()
	if !t.running || len(t.events) == 0 {
		t.mutex.Unlock()
		return false
	}
	pending := t.events
	t.events = nil
	h, d := t.handler, t.dispatcher
	t.mutex.Unlock()

	for _, ev := range pending {
		t.dispatch(h, d, ev)
	}
	return true
}

func (t *Transport) dispatch(h transport.Handler, d *transport.Dispatcher, ev event) {
	var res result
	switch ev.kind {
	case eventSetup:
		res.data, res.err = d.HandleSetup(&ev.setup, ev.data)
		if res.err != nil {
			t.mutex.Lock()
			t.stalls++
			t.mutex.Unlock()
			pkg.LogDebug(pkg.ComponentTransport, "control request stalled",
				"setup", ev.setup.String(),
				"error", res.err)
		}
	case eventData:
		h.DataAvailable(ev.itf)
	case eventAudio:
		h.AudioPayload(ev.data)
	case eventMedium:
		h.MountChanged(ev.loaded)
	case eventBlockRead:
		res.data, res.err = t.readBlocks(h, ev.lba, ev.count)
	case eventBlockWrite:
		res.err = t.writeBlocks(h, ev.lba, ev.data)
	}
	if ev.done != nil {
		ev.done <- res
	}
}

// Read drains received CDC bytes.
func (t *Transport) Read(itf uint8, p []byte) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if err := t.checkCDC(itf); err != nil {
		return 0, err
	}
	n := copy(p, t.rx)
	t.rx = t.rx[n:]
	return n, nil
}

// Write queues CDC bytes for the host.
func (t *Transport) Write(itf uint8, p []byte) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if err := t.checkCDC(itf); err != nil {
		return 0, err
	}
	return t.tx.Write(p)
}

// Available returns the number of received CDC bytes.
func (t *Transport) Available(itf uint8) int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.checkCDC(itf) != nil {
		return 0
	}
	return len(t.rx)
}

func (t *Transport) checkCDC(itf uint8) error {
	if !t.running {
		return pkg.ErrNotRunning
	}
	if itf == descriptor.NoInterface || (itf != t.set.Map.CDCControl && itf != t.set.Map.CDCData) {
		return fmt.Errorf("cdc interface %d: %w", itf, pkg.ErrInvalidInterface)
	}
	return nil
}

func (t *Transport) enqueue(ev event) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if !t.running {
		return pkg.ErrNotRunning
	}
	t.events = append(t.events, ev)
	return nil
}

// await enqueues ev and blocks until the service loop has dispatched it.
func (t *Transport) await(ctx context.Context, ev event) (result, error) {
	ev.done = make(chan result, 1)
	if err := t.enqueue(ev); err != nil {
		return result{}, err
	}
	select {
	case res := <-ev.done:
		return res, res.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// Stalls returns the number of control requests the device rejected.
func (t *Transport) Stalls() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.stalls
}

var errNoStorage = errors.New("handler does not serve mass storage")
