package transport

import (
	"context"

	"github.com/ardnew/soundbox/descriptor"
)

// Handler receives class events from the transport. All methods are called
// from within [Transport.Task].
type Handler interface {
	// MountChanged reports the host loading (true) or ejecting (false) the
	// mass-storage medium.
	MountChanged(loaded bool)

	// DataAvailable reports bytes waiting on the CDC interface itf.
	DataAvailable(itf uint8)

	// LineStateChanged reports a SET_CONTROL_LINE_STATE request on the CDC
	// interface itf.
	LineStateChanged(itf uint8, dtr, rts bool)

	// AudioPayload delivers one isochronous OUT packet of PCM samples. The
	// slice is only valid for the duration of the call.
	AudioPayload(p []byte)
}

// StorageHandler is implemented by handlers that back the mass-storage
// volume. Block callbacks run inside [Transport.Task].
type StorageHandler interface {
	// StorageCapacity returns the volume size in blocks and the block size.
	StorageCapacity() (blocks, blockSize uint32)

	// StorageRead copies data starting offset bytes into block lba.
	StorageRead(lba, offset uint32, buf []byte) (int, error)

	// StorageWrite writes data starting offset bytes into block lba.
	StorageWrite(lba, offset uint32, data []byte) (int, error)

	// StorageReady reports whether the medium is present.
	StorageReady() bool
}

// Transport is a USB device stack presenting a composite configuration.
type Transport interface {
	// Init brings up the controller and starts serving set during
	// enumeration. The handler must be registered first.
	Init(ctx context.Context, set *descriptor.Set) error

	// Register installs the class event handler.
	Register(h Handler) error

	// Task dispatches pending USB events to the handler. It reports whether
	// any event was dispatched.
	Task() bool

	// Read drains received CDC bytes on interface itf into p.
	Read(itf uint8, p []byte) (int, error)

	// Write queues p for transmission on CDC interface itf.
	Write(itf uint8, p []byte) (int, error)

	// Available returns the number of received CDC bytes on itf.
	Available(itf uint8) int

	// Connected reports whether a host has configured the device.
	Connected() bool

	// Stop detaches from the bus.
	Stop() error
}
