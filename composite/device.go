package composite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/soundbox/audio"
	"github.com/ardnew/soundbox/console"
	"github.com/ardnew/soundbox/descriptor"
	"github.com/ardnew/soundbox/pkg"
	"github.com/ardnew/soundbox/storage"
	"github.com/ardnew/soundbox/transport"
)

// Device is the composite device orchestrator. It owns no class state; it
// holds references to the storage adapter, audio relay and console bridge
// and routes transport events between them.
type Device struct {
	mutex sync.Mutex

	cfg       Config
	transport transport.Transport
	storage   *storage.Adapter
	relay     *audio.Relay
	registry  *console.Registry
	console   *console.Bridge
	iface     descriptor.InterfaceMap

	set   *descriptor.Set
	state State
	err   error

	loopCtx context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group

	onStateChange func(old, new State)
}

var (
	_ transport.Handler        = (*Device)(nil)
	_ transport.StorageHandler = (*Device)(nil)
	_ console.Listener         = (*Device)(nil)
)

// New creates a device in the booting state. store and relay may be nil
// when the matching function is disabled in cfg.Descriptors.Features.
func New(t transport.Transport, store *storage.Adapter, relay *audio.Relay, cfg Config) *Device {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if cfg.MountAttempts == 0 {
		cfg.MountAttempts = DefaultMountAttempts
	}
	if cfg.MountBackoff <= 0 {
		cfg.MountBackoff = DefaultMountBackoff
	}

	d := &Device{
		cfg:       cfg,
		transport: t,
		storage:   store,
		relay:     relay,
		registry:  console.NewRegistry(),
		iface:     descriptor.NewInterfaceMap(cfg.Descriptors.Features),
	}
	d.console = console.NewBridge(transport.NewPort(t, d.iface.CDCControl), d.registry, d)
	d.registerCommands()
	if store != nil {
		store.OnMountChanged(func(mounted bool) {
			pkg.LogInfo(pkg.ComponentComposite, "storage mounted to application", "mounted", mounted)
		})
	}
	return d
}

// OnStateChange registers fn to observe state transitions.
func (d *Device) OnStateChange(fn func(old, new State)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onStateChange = fn
}

// State returns the current state.
func (d *Device) State() State {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.state
}

// Err returns the error that halted the device, if any.
func (d *Device) Err() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.err
}

// Descriptors returns the descriptor set built at boot.
func (d *Device) Descriptors() *descriptor.Set {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.set
}

// Registry returns the console command registry.
func (d *Device) Registry() *console.Registry { return d.registry }

// Console returns the serial console bridge.
func (d *Device) Console() *console.Bridge { return d.console }

func (d *Device) setState(s State) {
	d.mutex.Lock()
	old := d.state
	d.state = s
	fn := d.onStateChange
	d.mutex.Unlock()

	if old == s {
		return
	}
	pkg.LogDebug(pkg.ComponentComposite, "state changed",
		"from", old.String(),
		"to", s.String())
	if fn != nil {
		fn(old, s)
	}
}

// halt records err as the cause of a failed boot stage.
func (d *Device) halt(stage string, err error) error {
	ie := &pkg.InitError{Stage: stage, Err: err}
	d.mutex.Lock()
	d.err = ie
	d.mutex.Unlock()
	d.setState(StateHalted)
	pkg.LogErr(pkg.ComponentComposite, "boot halted", ie, "stage", stage)
	return ie
}

// Boot mounts storage, configures audio, builds the descriptors and
// registers with the transport. Any failure halts the device.
func (d *Device) Boot(ctx context.Context) error {
	if s := d.State(); s != StateBooting {
		return stateErr("boot", s)
	}
	f := d.cfg.Descriptors.Features

	if f.Has(descriptor.FeatureMSC) {
		if d.storage == nil {
			return d.halt("storage", fmt.Errorf("no storage adapter: %w", pkg.ErrInvalidParameter))
		}
		if err := d.mountWithRetry(ctx); err != nil {
			return d.halt("storage", err)
		}
		d.logListing()
	}

	if f.Has(descriptor.FeatureAudio) {
		if d.relay == nil {
			return d.halt("audio", fmt.Errorf("no audio relay: %w", pkg.ErrInvalidParameter))
		}
		if d.cfg.Audio.Channels != d.cfg.Descriptors.AudioChannels {
			return d.halt("audio", fmt.Errorf("relay has %d channels, speaker descriptor %d: %w",
				d.cfg.Audio.Channels, d.cfg.Descriptors.AudioChannels, pkg.ErrInvalidConfig))
		}
		if err := d.relay.Configure(d.cfg.Audio); err != nil {
			return d.halt("audio", err)
		}
	}

	set, err := descriptor.Build(d.cfg.Descriptors)
	if err != nil {
		return d.halt("descriptors", err)
	}
	if err := set.Validate(); err != nil {
		return d.halt("descriptors", err)
	}
	if err := d.transport.Register(d); err != nil {
		return d.halt("register", err)
	}

	d.mutex.Lock()
	d.set = set
	d.mutex.Unlock()
	d.setState(StateClassesRegistered)

	pkg.LogInfo(pkg.ComponentComposite, "classes registered",
		"features", f.String(),
		"pid", fmt.Sprintf("0x%04X", set.Device.ProductID),
		"interfaces", set.Map.Count,
		"configLength", len(set.Configuration))
	return nil
}

// mountWithRetry mounts storage with bounded exponential backoff. A missing
// partition is not retried.
func (d *Device) mountWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.MountBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := d.storage.Mount()
		if errors.Is(err, pkg.ErrPartitionNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.cfg.MountAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			pkg.LogWarn(pkg.ComponentStorage, "mount failed, retrying",
				"error", err,
				"retryIn", next)
		}),
	)
	return err
}

// logListing logs the directory entries of the mounted data partition.
func (d *Device) logListing() {
	count := 0
	for name := range d.storage.Entries() {
		pkg.LogInfo(pkg.ComponentStorage, "entry", "path", d.storage.Path(), "name", name)
		count++
	}
	pkg.LogInfo(pkg.ComponentStorage, "listing complete", "path", d.storage.Path(), "entries", count)
}

// Start initializes the transport and launches the service loop.
func (d *Device) Start(ctx context.Context) error {
	d.mutex.Lock()
	state, set := d.state, d.set
	d.mutex.Unlock()
	if state != StateClassesRegistered {
		return stateErr("start", state)
	}

	if err := d.transport.Init(ctx, set); err != nil {
		return d.halt("transport", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	group, loopCtx := errgroup.WithContext(loopCtx)

	d.mutex.Lock()
	d.loopCtx, d.cancel, d.group = loopCtx, cancel, group
	d.mutex.Unlock()
	d.setState(StateRunning)

	group.Go(func() error {
		err := d.serve(loopCtx)
		if terr := d.teardown(); terr != nil {
			return terr
		}
		return err
	})
	pkg.LogInfo(pkg.ComponentComposite, "device running")
	return nil
}

// stateErr reports an operation attempted in the wrong state.
func stateErr(op string, s State) error {
	var err error
	switch s {
	case StateHalted:
		err = pkg.ErrHalted
	case StateRunning:
		err = pkg.ErrAlreadyRunning
	default:
		err = pkg.ErrInvalidState
	}
	return fmt.Errorf("%s in state %s: %w", op, s, err)
}

// Run boots and starts the device, then waits for the service loop.
func (d *Device) Run(ctx context.Context) error {
	if err := d.Boot(ctx); err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}
	return d.Wait()
}

// serve is the service loop. Class callbacks run inside Task.
func (d *Device) serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.transport.Task() {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.cfg.IdleInterval):
		}
	}
}

// Wait blocks until the service loop exits. Cancellation is a clean exit.
func (d *Device) Wait() error {
	d.mutex.Lock()
	group := d.group
	d.mutex.Unlock()
	if group == nil {
		return pkg.ErrNotRunning
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop ends the service loop and waits for the device to halt.
func (d *Device) Stop() error {
	d.mutex.Lock()
	if d.state != StateRunning {
		d.mutex.Unlock()
		return pkg.ErrNotRunning
	}
	cancel := d.cancel
	d.mutex.Unlock()

	cancel()
	return d.Wait()
}

// teardown detaches the transport and the audio channel once the service
// loop has exited, for any reason.
func (d *Device) teardown() error {
	d.mutex.Lock()
	cancel := d.cancel
	d.mutex.Unlock()
	cancel()

	err := d.transport.Stop()
	if errors.Is(err, pkg.ErrNotRunning) {
		err = nil
	}
	if d.relay != nil {
		if rerr := d.relay.Close(); rerr != nil && err == nil {
			err = rerr
		}
	}
	d.setState(StateHalted)
	pkg.LogInfo(pkg.ComponentComposite, "device stopped")
	return err
}

// loopContext returns the service loop context.
func (d *Device) loopContext() context.Context {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.loopCtx == nil {
		return context.Background()
	}
	return d.loopCtx
}
