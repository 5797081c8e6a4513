package sim

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/soundbox/descriptor"
	"github.com/ardnew/soundbox/pkg"
	"github.com/ardnew/soundbox/transport"
)

// fakeDevice records class events and serves a RAM volume.
type fakeDevice struct {
	mutex     sync.Mutex
	mounts    []bool
	data      []uint8
	lines     []bool
	payloads  [][]byte
	volume    []byte
	blockSize uint32
	ready     bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{volume: make([]byte, 8*512), blockSize: 512, ready: true}
}

func (f *fakeDevice) MountChanged(loaded bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.mounts = append(f.mounts, loaded)
}

func (f *fakeDevice) DataAvailable(itf uint8) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.data = append(f.data, itf)
}

func (f *fakeDevice) LineStateChanged(itf uint8, dtr, rts bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.lines = append(f.lines, dtr)
}

func (f *fakeDevice) AudioPayload(p []byte) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.payloads = append(f.payloads, append([]byte(nil), p...))
}

func (f *fakeDevice) StorageCapacity() (uint32, uint32) {
	return uint32(len(f.volume)) / f.blockSize, f.blockSize
}

func (f *fakeDevice) StorageRead(lba, offset uint32, buf []byte) (int, error) {
	return copy(buf, f.volume[lba*f.blockSize+offset:]), nil
}

func (f *fakeDevice) StorageWrite(lba, offset uint32, data []byte) (int, error) {
	return copy(f.volume[lba*f.blockSize+offset:], data), nil
}

func (f *fakeDevice) StorageReady() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.ready
}

func testOptions() descriptor.Options {
	opts := descriptor.DefaultOptions()
	opts.UniqueID = []byte{0x5B, 0x0C}
	return opts
}

func newAttached(t *testing.T, opts descriptor.Options) (*Transport, *fakeDevice) {
	t.Helper()
	set, err := descriptor.Build(opts)
	if err != nil {
		t.Fatal(err)
	}
	tr := New()
	dev := newFakeDevice()
	if err := tr.Register(dev); err != nil {
		t.Fatal(err)
	}
	if err := tr.Init(context.Background(), set); err != nil {
		t.Fatal(err)
	}
	return tr, dev
}

// serve runs the service loop until the test ends.
func serve(t *testing.T, tr *Transport) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			if !tr.Task() {
				time.Sleep(time.Millisecond)
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestInit_Errors(t *testing.T) {
	set, err := descriptor.Build(testOptions())
	if err != nil {
		t.Fatal(err)
	}

	tr := New()
	if err := tr.Init(context.Background(), set); !errors.Is(err, pkg.ErrTransportInit) || !errors.Is(err, pkg.ErrNoHandler) {
		t.Errorf("Init() without handler = %v", err)
	}

	if err := tr.Register(newFakeDevice()); err != nil {
		t.Fatal(err)
	}
	injected := errors.New("phy not responding")
	tr.FailInit(injected)
	if err := tr.Init(context.Background(), set); !errors.Is(err, pkg.ErrTransportInit) || !errors.Is(err, injected) {
		t.Errorf("Init() with injected fault = %v", err)
	}

	if err := tr.Init(context.Background(), set); err != nil {
		t.Fatalf("Init() retry = %v", err)
	}
	if !tr.Connected() {
		t.Error("Connected() = false after Init")
	}
	if err := tr.Init(context.Background(), set); !errors.Is(err, pkg.ErrAlreadyRunning) {
		t.Errorf("second Init() = %v, want ErrAlreadyRunning", err)
	}
	if err := tr.Register(newFakeDevice()); !errors.Is(err, pkg.ErrAlreadyRunning) {
		t.Errorf("Register() while running = %v, want ErrAlreadyRunning", err)
	}
}

func TestTask_DispatchesInOrder(t *testing.T) {
	tr, dev := newAttached(t, testOptions())

	if tr.Task() {
		t.Error("Task() with empty queue reported work")
	}

	tr.SetControlLineState(true, false)
	tr.SendSerial([]byte("ls\n"))
	tr.SetMediumLoaded(false)
	tr.SetControlLineState(false, false)

	if len(dev.lines) != 0 {
		t.Fatal("events dispatched before Task")
	}
	if !tr.Task() {
		t.Fatal("Task() reported no work")
	}

	if len(dev.lines) != 2 || !dev.lines[0] || dev.lines[1] {
		t.Errorf("line states = %v, want [true false]", dev.lines)
	}
	if len(dev.data) != 1 || dev.data[0] != 1 {
		t.Errorf("data events = %v, want [1]", dev.data)
	}
	if len(dev.mounts) != 1 || dev.mounts[0] {
		t.Errorf("mount events = %v, want [false]", dev.mounts)
	}
}

func TestSerial(t *testing.T) {
	tr, _ := newAttached(t, testOptions())
	tr.SetRxCapacity(4)

	n, err := tr.SendSerial([]byte("status"))
	if err != nil || n != 4 {
		t.Errorf("SendSerial() = %d, %v; want 4", n, err)
	}
	if tr.Available(1) != 4 {
		t.Errorf("Available() = %d, want 4", tr.Available(1))
	}

	buf := make([]byte, 16)
	n, _ = tr.Read(1, buf)
	if string(buf[:n]) != "stat" {
		t.Errorf("Read() = %q, want stat", buf[:n])
	}

	tr.Write(1, []byte("ok\n"))
	if got := tr.ReadSerial(); !bytes.Equal(got, []byte("ok\n")) {
		t.Errorf("ReadSerial() = %q", got)
	}
	if got := tr.ReadSerial(); len(got) != 0 {
		t.Errorf("ReadSerial() after drain = %q", got)
	}

	if _, err := tr.Read(3, buf); !errors.Is(err, pkg.ErrInvalidInterface) {
		t.Errorf("Read(audio itf) = %v, want ErrInvalidInterface", err)
	}
}

func TestSerial_NoCDC(t *testing.T) {
	opts := testOptions()
	opts.Features = descriptor.FeatureMSC | descriptor.FeatureAudio
	tr, _ := newAttached(t, opts)

	if _, err := tr.SendSerial([]byte("x")); !errors.Is(err, pkg.ErrInvalidInterface) {
		t.Errorf("SendSerial() = %v, want ErrInvalidInterface", err)
	}
	if err := tr.SetControlLineState(true, true); !errors.Is(err, pkg.ErrInvalidInterface) {
		t.Errorf("SetControlLineState() = %v, want ErrInvalidInterface", err)
	}
}

func TestSendAudio_Packetizes(t *testing.T) {
	tr, dev := newAttached(t, testOptions())

	pcm := make([]byte, 250)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	if err := tr.SendAudio(pcm); err != nil {
		t.Fatal(err)
	}
	tr.Task()

	// mono endpoint carries 98 bytes per frame
	want := []int{98, 98, 54}
	if len(dev.payloads) != len(want) {
		t.Fatalf("got %d packets, want %d", len(dev.payloads), len(want))
	}
	var joined []byte
	for i, p := range dev.payloads {
		if len(p) != want[i] {
			t.Errorf("packet %d = %d bytes, want %d", i, len(p), want[i])
		}
		joined = append(joined, p...)
	}
	if !bytes.Equal(joined, pcm) {
		t.Error("reassembled packets differ from sent PCM")
	}
}

func TestBlocks(t *testing.T) {
	tr, dev := newAttached(t, testOptions())
	serve(t, tr)
	ctx := context.Background()

	data := bytes.Repeat([]byte{0xA5}, 1024)
	if err := tr.WriteBlocks(ctx, 2, data); err != nil {
		t.Fatalf("WriteBlocks() error = %v", err)
	}
	got, err := tr.ReadBlocks(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ReadBlocks() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("read back differs from written data")
	}

	if err := tr.WriteBlocks(ctx, 0, make([]byte, 100)); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("partial block write = %v, want ErrInvalidParameter", err)
	}

	dev.mutex.Lock()
	dev.ready = false
	dev.mutex.Unlock()
	if _, err := tr.ReadBlocks(ctx, 0, 1); !errors.Is(err, pkg.ErrNotMounted) {
		t.Errorf("ReadBlocks() without medium = %v, want ErrNotMounted", err)
	}
}

func TestControl(t *testing.T) {
	tr, _ := newAttached(t, testOptions())
	serve(t, tr)

	s := transport.SetupPacket{RequestType: 0xA1, Request: transport.RequestGetMaxLUN, Index: 0, Length: 1}
	resp, err := tr.Control(context.Background(), s, nil)
	if err != nil || len(resp) != 1 {
		t.Errorf("Control(GET_MAX_LUN) = %v, %v", resp, err)
	}

	bad := transport.SetupPacket{RequestType: 0x21, Request: 0x42, Index: 1}
	if _, err := tr.Control(context.Background(), bad, nil); !errors.Is(err, pkg.ErrInvalidRequest) {
		t.Errorf("Control(unknown) = %v, want ErrInvalidRequest", err)
	}
	if tr.Stalls() != 1 {
		t.Errorf("Stalls() = %d, want 1", tr.Stalls())
	}
}

func TestGetDescriptor(t *testing.T) {
	tr, _ := newAttached(t, testOptions())

	raw, err := tr.GetDescriptor(descriptor.TypeDevice, 0, 18)
	if err != nil {
		t.Fatal(err)
	}
	var dev descriptor.DeviceDescriptor
	if err := descriptor.ParseDeviceDescriptor(raw, &dev); err != nil {
		t.Fatal(err)
	}
	if dev.ProductID != 0x401B {
		t.Errorf("ProductID = 0x%04X, want 0x401B", dev.ProductID)
	}
}

func TestStop_FailsPending(t *testing.T) {
	tr, _ := newAttached(t, testOptions())

	errc := make(chan error, 1)
	go func() {
		_, err := tr.ReadBlocks(context.Background(), 0, 1)
		errc <- err
	}()

	// wait for the request to queue
	for {
		tr.mutex.Lock()
		n := len(tr.events)
		tr.mutex.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := tr.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; !errors.Is(err, pkg.ErrNotRunning) {
		t.Errorf("pending ReadBlocks() = %v, want ErrNotRunning", err)
	}
	if err := tr.Stop(); !errors.Is(err, pkg.ErrNotRunning) {
		t.Errorf("second Stop() = %v, want ErrNotRunning", err)
	}
	if tr.Connected() {
		t.Error("Connected() = true after Stop")
	}
}
