package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/soundbox/pkg"
)

// Stats counts relay traffic.
type Stats struct {
	Payloads     uint64
	BytesWritten uint64
	Underruns    uint64
	DroppedBytes uint64
}

// Relay forwards audio payloads to a channel. It is configured once.
type Relay struct {
	mutex sync.Mutex

	ch    Channel
	cfg   Config
	ready bool
	stats Stats
}

// NewRelay returns an unconfigured relay writing to ch.
func NewRelay(ch Channel) *Relay {
	return &Relay{ch: ch}
}

// Configure validates cfg, then allocates and enables the channel. A relay
// can be configured only once.
func (r *Relay) Configure(cfg Config) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.ready {
		return pkg.ErrAlreadyConfigured
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if r.ch == nil {
		return fmt.Errorf("no channel: %w", pkg.ErrChannelAllocationFailed)
	}
	if err := r.ch.Configure(cfg); err != nil {
		return allocErr("configure", err)
	}
	if err := r.ch.Enable(); err != nil {
		return allocErr("enable", err)
	}

	r.cfg = cfg
	r.ready = true
	pkg.LogInfo(pkg.ComponentAudio, "audio channel enabled",
		"sampleRate", cfg.SampleRate,
		"bits", cfg.BitsPerSample,
		"channels", cfg.Channels,
		"frames", cfg.FrameCount,
		"descriptors", cfg.DMADescriptors,
		"latency", cfg.Latency(),
		"policy", cfg.Policy.String())
	return nil
}

func allocErr(op string, err error) error {
	if errors.Is(err, pkg.ErrChannelAllocationFailed) {
		return fmt.Errorf("audio %s: %w", op, err)
	}
	return fmt.Errorf("audio %s: %w: %w", op, pkg.ErrChannelAllocationFailed, err)
}

// Ready reports whether the relay has been configured.
func (r *Relay) Ready() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.ready
}

// Config returns the running configuration and whether the relay is ready.
func (r *Relay) Config() (Config, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.cfg, r.ready
}

// Stats returns relay counters.
func (r *Relay) Stats() Stats {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.stats
}

// Relay writes payload to the channel in one call. A short write is an
// underrun: it is logged and counted, and the byte count is returned with a
// nil error. Cancelling ctx abandons a write that is waiting for space.
func (r *Relay) Relay(ctx context.Context, payload []byte) (int, error) {
	r.mutex.Lock()
	ready, cfg := r.ready, r.cfg
	r.mutex.Unlock()

	if !ready {
		return 0, pkg.ErrChannelNotReady
	}
	if len(payload) == 0 {
		return 0, nil
	}

	if cfg.Policy == PolicyDrop {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DropTimeout)
		defer cancel()
	}

	n, err := r.ch.Write(ctx, payload)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return n, fmt.Errorf("audio write: %w", err)
	}

	r.mutex.Lock()
	r.stats.Payloads++
	r.stats.BytesWritten += uint64(n)
	short := n < len(payload)
	if short {
		r.stats.Underruns++
		r.stats.DroppedBytes += uint64(len(payload) - n)
	}
	underruns := r.stats.Underruns
	r.mutex.Unlock()

	if short {
		pkg.LogWarn(pkg.ComponentAudio, "audio underrun",
			"written", n,
			"payload", len(payload),
			"underruns", underruns)
	}
	return n, nil
}

// Close disables the channel.
func (r *Relay) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if !r.ready {
		return nil
	}
	r.ready = false
	return r.ch.Disable()
}
