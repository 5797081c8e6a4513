package transport

import (
	"fmt"
	"sync"

	"github.com/ardnew/soundbox/descriptor"
	"github.com/ardnew/soundbox/pkg"
)

// Dispatcher decodes class requests addressed to the composite's interfaces
// and forwards the resulting events to a [Handler]. It keeps the CDC line
// coding and control line state the host last set.
type Dispatcher struct {
	mutex sync.RWMutex

	set     *descriptor.Set
	handler Handler

	lineCoding   LineCoding
	controlState uint16

	responseBuf [LineCodingSize]byte
}

// NewDispatcher creates a dispatcher for set delivering events to h.
func NewDispatcher(set *descriptor.Set, h Handler) *Dispatcher {
	return &Dispatcher{
		set:        set,
		handler:    h,
		lineCoding: DefaultLineCoding,
	}
}

// LineCoding returns the current line coding.
func (d *Dispatcher) LineCoding() LineCoding {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.lineCoding
}

// DTR returns the last Data Terminal Ready state.
func (d *Dispatcher) DTR() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.controlState&ControlLineDTR != 0
}

// HandleSetup processes a SETUP packet and its OUT data stage. It returns
// the IN data stage, if any. Unsupported requests return
// [pkg.ErrInvalidRequest], which a transport answers with a stall.
func (d *Dispatcher) HandleSetup(setup *SetupPacket, data []byte) ([]byte, error) {
	if !setup.IsClass() {
		if setup.Request == RequestGetDescriptor {
			return d.descriptor(setup)
		}
		return nil, fmt.Errorf("%s: %w", setup, pkg.ErrInvalidRequest)
	}
	if !setup.IsInterfaceRecipient() {
		return nil, fmt.Errorf("%s: %w", setup, pkg.ErrInvalidRequest)
	}

	m := d.set.Map
	switch itf := setup.InterfaceNumber(); {
	case itf == descriptor.NoInterface:
		return nil, fmt.Errorf("interface %d: %w", itf, pkg.ErrInvalidInterface)
	case itf == m.CDCControl:
		return d.handleCDC(setup, data)
	case itf == m.MSC:
		return d.handleMSC(setup)
	default:
		return nil, fmt.Errorf("interface %d: %w", itf, pkg.ErrInvalidInterface)
	}
}

func (d *Dispatcher) descriptor(setup *SetupPacket) ([]byte, error) {
	var out []byte
	switch typ, idx := uint8(setup.Value>>8), uint8(setup.Value); typ {
	case descriptor.TypeDevice:
		out = d.set.DeviceBytes()
	case descriptor.TypeConfiguration:
		out = d.set.Configuration
	case descriptor.TypeString:
		s, ok := d.set.Strings.Descriptor(idx)
		if !ok {
			return nil, fmt.Errorf("string %d: %w", idx, pkg.ErrInvalidRequest)
		}
		out = s
	default:
		return nil, fmt.Errorf("descriptor type 0x%02X: %w", typ, pkg.ErrInvalidRequest)
	}
	if int(setup.Length) < len(out) {
		out = out[:setup.Length]
	}
	return out, nil
}

func (d *Dispatcher) handleCDC(setup *SetupPacket, data []byte) ([]byte, error) {
	switch setup.Request {
	case RequestSetLineCoding:
		var lc LineCoding
		if err := ParseLineCoding(data, &lc); err != nil {
			return nil, err
		}
		d.mutex.Lock()
		d.lineCoding = lc
		d.mutex.Unlock()
		pkg.LogDebug(pkg.ComponentTransport, "line coding set",
			"baud", lc.DTERate,
			"dataBits", lc.DataBits,
			"parity", lc.ParityType,
			"stopBits", lc.CharFormat)
		return nil, nil

	case RequestGetLineCoding:
		d.mutex.Lock()
		n := d.lineCoding.MarshalTo(d.responseBuf[:])
		out := append([]byte(nil), d.responseBuf[:n]...)
		d.mutex.Unlock()
		return out, nil

	case RequestSetControlLineState:
		d.mutex.Lock()
		d.controlState = setup.Value
		d.mutex.Unlock()
		dtr := setup.Value&ControlLineDTR != 0
		rts := setup.Value&ControlLineRTS != 0
		pkg.LogDebug(pkg.ComponentTransport, "control line state set",
			"dtr", dtr,
			"rts", rts)
		d.handler.LineStateChanged(setup.InterfaceNumber(), dtr, rts)
		return nil, nil

	case RequestSendBreak:
		pkg.LogDebug(pkg.ComponentTransport, "break signaled",
			"duration_ms", setup.Value)
		return nil, nil

	default:
		return nil, fmt.Errorf("%s: %w", setup, pkg.ErrInvalidRequest)
	}
}

func (d *Dispatcher) handleMSC(setup *SetupPacket) ([]byte, error) {
	switch setup.Request {
	case RequestGetMaxLUN:
		return []byte{0}, nil
	case RequestBulkOnlyReset:
		return nil, nil
	default:
		return nil, fmt.Errorf("%s: %w", setup, pkg.ErrInvalidRequest)
	}
}
