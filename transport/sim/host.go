package sim

import (
	"context"
	"fmt"

	"github.com/ardnew/soundbox/descriptor"
	"github.com/ardnew/soundbox/pkg"
	"github.com/ardnew/soundbox/transport"
)

// Control performs a control transfer and waits for the device's service
// loop to answer it.
func (t *Transport) Control(ctx context.Context, setup transport.SetupPacket, data []byte) ([]byte, error) {
	res, err := t.await(ctx, event{kind: eventSetup, setup: setup, data: data})
	return res.data, err
}

// GetDescriptor reads a descriptor the way a host does during enumeration.
// Standard requests are answered by the stack without involving the service
// loop.
func (t *Transport) GetDescriptor(typ, index uint8, length uint16) ([]byte, error) {
	t.mutex.Lock()
	d := t.dispatcher
	t.mutex.Unlock()
	if d == nil {
		return nil, pkg.ErrNotRunning
	}
	var setup transport.SetupPacket
	transport.GetDescriptorSetup(&setup, typ, index, length)
	return d.HandleSetup(&setup, nil)
}

// SetControlLineState queues a SET_CONTROL_LINE_STATE request on the CDC
// interface, as a terminal program does when it opens or closes the port.
func (t *Transport) SetControlLineState(dtr, rts bool) error {
	t.mutex.Lock()
	if !t.running {
		t.mutex.Unlock()
		return pkg.ErrNotRunning
	}
	itf := t.set.Map.CDCControl
	t.mutex.Unlock()
	if itf == descriptor.NoInterface {
		return fmt.Errorf("cdc: %w", pkg.ErrInvalidInterface)
	}

	var setup transport.SetupPacket
	transport.ControlLineStateSetup(&setup, itf, dtr, rts)
	return t.enqueue(event{kind: eventSetup, setup: setup})
}

// SendSerial delivers bytes from the host terminal. It returns the number of
// bytes the receive FIFO accepted.
func (t *Transport) SendSerial(p []byte) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if !t.running {
		return 0, pkg.ErrNotRunning
	}
	itf := t.set.Map.CDCControl
	if itf == descriptor.NoInterface {
		return 0, fmt.Errorf("cdc: %w", pkg.ErrInvalidInterface)
	}
	n := min(len(p), t.rxCapacity-len(t.rx))
	if n <= 0 {
		return 0, nil
	}
	t.rx = append(t.rx, p[:n]...)
	t.events = append(t.events, event{kind: eventData, itf: itf})
	return n, nil
}

// ReadSerial returns and clears everything the device has written to the
// CDC port.
func (t *Transport) ReadSerial() []byte {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	out := append([]byte(nil), t.tx.Bytes()...)
	t.tx.Reset()
	return out
}

// SendAudio streams PCM to the speaker interface, split into isochronous
// packets no larger than the endpoint size.
func (t *Transport) SendAudio(pcm []byte) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if !t.running {
		return pkg.ErrNotRunning
	}
	if t.set.Map.AudioStreaming == descriptor.NoInterface {
		return fmt.Errorf("audio: %w", pkg.ErrInvalidInterface)
	}
	size := int(descriptor.AudioEndpointSize(t.set.Channels))
	for len(pcm) > 0 {
		n := min(size, len(pcm))
		t.events = append(t.events, event{kind: eventAudio, data: append([]byte(nil), pcm[:n]...)})
		pcm = pcm[n:]
	}
	return nil
}

// SetMediumLoaded simulates the host loading or ejecting the mass-storage
// medium.
func (t *Transport) SetMediumLoaded(loaded bool) error {
	return t.enqueue(event{kind: eventMedium, loaded: loaded})
}

// ReadBlocks issues a SCSI READ(10) for count blocks at lba.
func (t *Transport) ReadBlocks(ctx context.Context, lba, count uint32) ([]byte, error) {
	res, err := t.await(ctx, event{kind: eventBlockRead, lba: lba, count: count})
	return res.data, err
}

// WriteBlocks issues a SCSI WRITE(10) of data at lba.
func (t *Transport) WriteBlocks(ctx context.Context, lba uint32, data []byte) error {
	_, err := t.await(ctx, event{kind: eventBlockWrite, lba: lba, data: append([]byte(nil), data...)})
	return err
}

func (t *Transport) readBlocks(h transport.Handler, lba, count uint32) ([]byte, error) {
	sh, ok := h.(transport.StorageHandler)
	if !ok {
		return nil, errNoStorage
	}
	if !sh.StorageReady() {
		return nil, pkg.ErrNotMounted
	}
	_, size := sh.StorageCapacity()
	out := make([]byte, int(count)*int(size))
	for i := range count {
		if _, err := sh.StorageRead(lba+i, 0, out[i*size:(i+1)*size]); err != nil {
			return nil, fmt.Errorf("read lba %d: %w", lba+i, err)
		}
	}
	return out, nil
}

func (t *Transport) writeBlocks(h transport.Handler, lba uint32, data []byte) error {
	sh, ok := h.(transport.StorageHandler)
	if !ok {
		return errNoStorage
	}
	if !sh.StorageReady() {
		return pkg.ErrNotMounted
	}
	_, size := sh.StorageCapacity()
	if size == 0 || uint32(len(data))%size != 0 {
		return fmt.Errorf("write of %d bytes: %w", len(data), pkg.ErrInvalidParameter)
	}
	for i := uint32(0); i*size < uint32(len(data)); i++ {
		if _, err := sh.StorageWrite(lba+i, 0, data[i*size:(i+1)*size]); err != nil {
			return fmt.Errorf("write lba %d: %w", lba+i, err)
		}
	}
	return nil
}
