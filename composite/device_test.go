package composite

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/tinyfs"

	"github.com/ardnew/soundbox/audio"
	"github.com/ardnew/soundbox/descriptor"
	"github.com/ardnew/soundbox/pkg"
	"github.com/ardnew/soundbox/storage"
	"github.com/ardnew/soundbox/transport"
	"github.com/ardnew/soundbox/transport/sim"
)

type fakeInfo struct {
	name string
	size int64
}

func (i fakeInfo) Name() string       { return i.name }
func (i fakeInfo) Size() int64        { return i.size }
func (i fakeInfo) Mode() fs.FileMode  { return 0o644 }
func (i fakeInfo) ModTime() time.Time { return time.Time{} }
func (i fakeInfo) IsDir() bool        { return false }
func (i fakeInfo) Sys() any           { return nil }

// fakeFS is a filesystem whose mount fails a set number of times.
type fakeFS struct {
	mu        sync.Mutex
	failMount int
	mounts    int
	files     []fakeInfo
}

func (f *fakeFS) Mount() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounts++
	if f.failMount > 0 {
		f.failMount--
		return errors.New("no valid FAT volume")
	}
	return nil
}

func (f *fakeFS) Unmount() error { return nil }
func (f *fakeFS) Format() error  { return nil }

func (f *fakeFS) ReadDir(string) ([]os.FileInfo, error) {
	out := make([]os.FileInfo, len(f.files))
	for i, fi := range f.files {
		out[i] = fi
	}
	return out, nil
}

func (f *fakeFS) mountCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mounts
}

type fixture struct {
	dev   *Device
	tr    *sim.Transport
	flash *storage.Flash
	store *storage.Adapter
	fs    *fakeFS
	ring  *audio.Ring
}

func newFixture(t *testing.T, modify func(*Config, *storage.Config)) *fixture {
	t.Helper()
	flash, err := storage.NewFlash(64*storage.DefaultEraseBlockSize, storage.DefaultEraseBlockSize)
	if err != nil {
		t.Fatalf("NewFlash() error = %v", err)
	}
	table, err := storage.DefaultTable(flash)
	if err != nil {
		t.Fatalf("DefaultTable() error = %v", err)
	}

	ffs := &fakeFS{files: []fakeInfo{{"song.wav", 3 << 20}, {"readme.txt", 120}}}
	scfg := storage.DefaultConfig(table)
	scfg.NewFilesystem = func(tinyfs.BlockDevice) (storage.Filesystem, error) { return ffs, nil }

	cfg := DefaultConfig()
	cfg.MountBackoff = time.Millisecond
	cfg.Descriptors.UniqueID = flash.UniqueID()
	if modify != nil {
		modify(&cfg, &scfg)
	}

	f := &fixture{
		tr:    sim.New(),
		flash: flash,
		store: storage.New(scfg),
		fs:    ffs,
		ring:  audio.NewRing(audio.RingOptions{}),
	}
	f.dev = New(f.tr, f.store, audio.NewRelay(f.ring), cfg)
	return f
}

// start boots and runs the device until the test ends.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.dev.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	if err := f.dev.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = f.dev.Stop() })
}

// flush waits until every event queued so far has been dispatched. Events
// are dispatched in order, so a control transfer answered by the service
// loop acts as a barrier.
func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	setup := transport.SetupPacket{
		RequestType: transport.RequestDirectionDeviceToHost | transport.RequestTypeClass | transport.RequestRecipientInterface,
		Request:     transport.RequestGetLineCoding,
		Index:       uint16(f.dev.iface.CDCControl),
		Length:      transport.LineCodingSize,
	}
	if _, err := f.tr.Control(ctx, setup, nil); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestDevice_BootAndRun(t *testing.T) {
	f := newFixture(t, nil)

	var transitions []State
	f.dev.OnStateChange(func(_, s State) { transitions = append(transitions, s) })
	f.start(t)

	if f.dev.State() != StateRunning {
		t.Fatalf("State() = %v", f.dev.State())
	}
	want := []State{StateClassesRegistered, StateRunning}
	if len(transitions) != 2 || transitions[0] != want[0] || transitions[1] != want[1] {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
	if !f.store.Mounted() {
		t.Error("storage not mounted after boot")
	}
	set := f.dev.Descriptors()
	if set == nil || set.Device.ProductID != 0x401B {
		t.Fatalf("Descriptors() = %+v", set)
	}
	serial, _ := set.Strings.Lookup(descriptor.StringSerial)
	if want := descriptor.SerialFromUID(f.flash.UniqueID()); serial != want {
		t.Errorf("serial = %q, want %q from the flash id", serial, want)
	}
	if !f.tr.Connected() {
		t.Error("transport not connected")
	}
	if f.dev.Err() != nil {
		t.Errorf("Err() = %v", f.dev.Err())
	}

	if err := f.dev.Boot(context.Background()); !errors.Is(err, pkg.ErrAlreadyRunning) {
		t.Errorf("second Boot() error = %v", err)
	}
}

func TestDevice_BootMountRetry(t *testing.T) {
	f := newFixture(t, nil)
	f.fs.failMount = 2
	f.start(t)

	if got := f.fs.mountCount(); got != 3 {
		t.Errorf("mount attempts = %d, want 3", got)
	}
	if !f.store.Mounted() {
		t.Error("storage not mounted")
	}
}

func TestDevice_BootHalts(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config, *storage.Config)
		failMount int
		stage     string
		wantErr   error
	}{
		{
			name:    "partition not found",
			modify:  func(_ *Config, s *storage.Config) { s.Label = "ffat" },
			stage:   "storage",
			wantErr: pkg.ErrPartitionNotFound,
		},
		{
			name:      "mount keeps failing",
			failMount: 10,
			stage:     "storage",
			wantErr:   pkg.ErrMountFailed,
		},
		{
			name:    "audio config",
			modify:  func(c *Config, _ *storage.Config) { c.Audio.SampleRate = 44100 },
			stage:   "audio",
			wantErr: pkg.ErrInvalidConfig,
		},
		{
			name:    "channel mismatch",
			modify:  func(c *Config, _ *storage.Config) { c.Audio.Channels = 2 },
			stage:   "audio",
			wantErr: pkg.ErrInvalidConfig,
		},
		{
			name:    "no serial number",
			modify:  func(c *Config, _ *storage.Config) { c.Descriptors.UniqueID = nil },
			stage:   "descriptors",
			wantErr: pkg.ErrInvalidParameter,
		},
		{
			name:    "unsupported feature",
			modify:  func(c *Config, _ *storage.Config) { c.Descriptors.Features |= descriptor.FeatureHID },
			stage:   "descriptors",
			wantErr: pkg.ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.modify)
			f.fs.failMount = tt.failMount

			err := f.dev.Boot(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Boot() error = %v, want %v", err, tt.wantErr)
			}
			var ie *pkg.InitError
			if !errors.As(err, &ie) || ie.Stage != tt.stage {
				t.Errorf("Boot() error = %v, want stage %q", err, tt.stage)
			}
			if pkg.Classify(err) != pkg.SeverityFatalInit {
				t.Errorf("Classify() = %v", pkg.Classify(err))
			}
			if f.dev.State() != StateHalted || !errors.Is(f.dev.Err(), tt.wantErr) {
				t.Errorf("State() = %v, Err() = %v", f.dev.State(), f.dev.Err())
			}
			if err := f.dev.Start(context.Background()); !errors.Is(err, pkg.ErrHalted) {
				t.Errorf("Start() after halt error = %v, want ErrHalted", err)
			}
		})
	}
}

func TestDevice_PartitionNotFoundNotRetried(t *testing.T) {
	f := newFixture(t, func(_ *Config, s *storage.Config) { s.Label = "ffat" })
	_ = f.dev.Boot(context.Background())
	if got := f.fs.mountCount(); got != 0 {
		t.Errorf("filesystem mounted %d times", got)
	}
}

func TestDevice_TransportInitHalts(t *testing.T) {
	f := newFixture(t, nil)
	f.tr.FailInit(errors.New("phy not responding"))

	if err := f.dev.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	err := f.dev.Start(context.Background())
	if !errors.Is(err, pkg.ErrTransportInit) {
		t.Fatalf("Start() error = %v, want ErrTransportInit", err)
	}
	if f.dev.State() != StateHalted {
		t.Errorf("State() = %v, want halted", f.dev.State())
	}
	if err := f.dev.Wait(); !errors.Is(err, pkg.ErrNotRunning) {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestDevice_Stop(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.dev.Boot(context.Background())
	_ = f.dev.Start(context.Background())

	if err := f.dev.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if f.dev.State() != StateHalted || f.dev.Err() != nil {
		t.Errorf("State() = %v, Err() = %v", f.dev.State(), f.dev.Err())
	}
	if f.tr.Connected() {
		t.Error("transport still connected")
	}
	if err := f.dev.Stop(); !errors.Is(err, pkg.ErrNotRunning) {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestDevice_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.dev.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.dev.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if f.dev.State() != StateHalted {
		t.Errorf("State() = %v, want halted", f.dev.State())
	}
	if f.tr.Connected() {
		t.Error("transport still connected")
	}
	if f.dev.relay.Ready() {
		t.Error("audio relay still enabled")
	}
	if err := f.dev.Stop(); !errors.Is(err, pkg.ErrNotRunning) {
		t.Errorf("Stop() after cancel error = %v", err)
	}
}

func TestDevice_StateErrors(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.dev.Start(context.Background()); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("Start() before Boot error = %v, want ErrInvalidState", err)
	}
	if err := f.dev.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	if err := f.dev.Boot(context.Background()); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("second Boot() error = %v, want ErrInvalidState", err)
	}
	if err := f.dev.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.dev.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	for name, op := range map[string]func(context.Context) error{
		"Boot":  f.dev.Boot,
		"Start": f.dev.Start,
	} {
		if err := op(context.Background()); !errors.Is(err, pkg.ErrHalted) {
			t.Errorf("%s() after Stop error = %v, want ErrHalted", name, err)
		}
	}
}

func TestDevice_StopWithFullRing(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)

	// Nothing drains the ring, so the service loop parks in the relay.
	if err := f.tr.SendAudio(make([]byte, 2*f.ring.Cap())); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.ring.Buffered() < f.ring.Cap() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if f.ring.Buffered() != f.ring.Cap() {
		t.Fatalf("ring buffered %d of %d", f.ring.Buffered(), f.ring.Cap())
	}

	done := make(chan error, 1)
	go func() { done <- f.dev.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop() blocked behind the relay (state %v)", f.dev.State())
	}
	if f.dev.State() != StateHalted {
		t.Errorf("State() = %v, want halted", f.dev.State())
	}
}

func TestDevice_WithoutStorageAndAudio(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Descriptors.Features = descriptor.FeatureCDC
	cfg.Descriptors.Serial = "CDC0001"
	tr := sim.New()
	dev := New(tr, nil, nil, cfg)

	if err := dev.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	if err := dev.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer dev.Stop()

	if got := dev.Descriptors().Device.ProductID; got != 0x4009 {
		t.Errorf("ProductID = 0x%04X, want 0x4009", got)
	}
	if dev.StorageReady() {
		t.Error("StorageReady() without storage")
	}
}
