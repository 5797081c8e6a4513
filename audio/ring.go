package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/soundbox/pkg"
)

// Ring defaults.
const (
	DefaultTick         = time.Millisecond
	DefaultMaxRingBytes = 64 * 1024
	minSpeed, maxSpeed  = 0.001, 100.0
)

// RingOptions configures a simulated DMA ring.
type RingOptions struct {
	// Speed scales the sample clock. 1 plays in real time, values below 1
	// model a slow clock, and 0 disables the clock so the ring only drains
	// through [Ring.Drain] or [Ring.Read].
	Speed float64

	// Tick is the clock period. Defaults to [DefaultTick].
	Tick time.Duration

	// Sink receives PCM drained by the clock. May be nil.
	Sink io.Writer

	// MaxBytes is the DMA memory available. Defaults to [DefaultMaxRingBytes].
	MaxBytes int
}

// Ring simulates a DMA descriptor ring drained by a sample clock. It
// implements [Channel].
type Ring struct {
	mu    sync.Mutex
	opts  RingOptions
	cfg   Config
	buf   []byte
	r, n  int
	space chan struct{}

	enabled bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

var _ Channel = (*Ring)(nil)

// NewRing returns an unconfigured ring.
func NewRing(opts RingOptions) *Ring {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxRingBytes
	}
	if opts.Speed != 0 {
		opts.Speed = pkg.Clamp(opts.Speed, minSpeed, maxSpeed)
	}
	return &Ring{opts: opts, space: make(chan struct{}, 1)}
}

// Configure allocates DMADescriptors × FrameCount frames.
func (g *Ring) Configure(cfg Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.enabled {
		return fmt.Errorf("ring enabled: %w", pkg.ErrAlreadyConfigured)
	}
	size := cfg.BufferBytes()
	if size <= 0 || size > g.opts.MaxBytes {
		return fmt.Errorf("ring of %d bytes (max %d): %w", size, g.opts.MaxBytes, pkg.ErrChannelAllocationFailed)
	}
	g.cfg = cfg
	g.buf = make([]byte, size)
	g.r, g.n = 0, 0
	return nil
}

// Enable starts the sample clock.
func (g *Ring) Enable() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.buf == nil {
		return fmt.Errorf("ring not configured: %w", pkg.ErrChannelAllocationFailed)
	}
	if g.enabled {
		return nil
	}
	g.enabled = true
	if g.opts.Speed == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return g.clock(ctx) })
	g.cancel, g.group = cancel, grp
	return nil
}

// Disable stops the sample clock and waits for it to exit.
func (g *Ring) Disable() error {
	g.mu.Lock()
	g.enabled = false
	cancel, grp := g.cancel, g.group
	g.cancel, g.group = nil, nil
	g.mu.Unlock()

	g.signal()
	if cancel == nil {
		return nil
	}
	cancel()
	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Write implements [Channel].
func (g *Ring) Write(ctx context.Context, p []byte) (int, error) {
	for {
		g.mu.Lock()
		if !g.enabled {
			g.mu.Unlock()
			return 0, pkg.ErrChannelNotReady
		}
		if free := len(g.buf) - g.n; free > 0 {
			n := g.put(p[:min(free, len(p))])
			g.mu.Unlock()
			return n, nil
		}
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-g.space:
		}
	}
}

// put copies p into the ring. Caller holds g.mu and ensures p fits.
func (g *Ring) put(p []byte) int {
	w := (g.r + g.n) % len(g.buf)
	c := copy(g.buf[w:], p)
	copy(g.buf, p[c:])
	g.n += len(p)
	return len(p)
}

// Read drains up to len(p) bytes into p.
func (g *Ring) Read(p []byte) (int, error) {
	g.mu.Lock()
	n := min(len(p), g.n)
	c := copy(p[:n], g.buf[g.r:])
	copy(p[c:n], g.buf)
	if n > 0 {
		g.r = (g.r + n) % len(g.buf)
		g.n -= n
	}
	g.mu.Unlock()

	if n > 0 {
		g.signal()
	}
	return n, nil
}

// Drain discards up to n bytes as if played, forwarding them to the sink.
func (g *Ring) Drain(n int) int {
	if n <= 0 {
		return 0
	}
	out := make([]byte, n)
	got, _ := g.Read(out)
	if got > 0 && g.opts.Sink != nil {
		if _, err := g.opts.Sink.Write(out[:got]); err != nil {
			pkg.LogDebug(pkg.ComponentAudio, "ring sink write failed", "error", err)
		}
	}
	return got
}

func (g *Ring) signal() {
	select {
	case g.space <- struct{}{}:
	default:
	}
}

// Buffered returns the number of bytes waiting to be played.
func (g *Ring) Buffered() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Cap returns the ring size in bytes.
func (g *Ring) Cap() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buf)
}

// clock drains the ring at the configured sample rate scaled by Speed.
func (g *Ring) clock(ctx context.Context) error {
	ticker := time.NewTicker(g.opts.Tick)
	defer ticker.Stop()

	g.mu.Lock()
	bps := float64(g.cfg.BytesPerSecond()) * g.opts.Speed
	frame := g.cfg.BytesPerFrame()
	g.mu.Unlock()

	var due float64
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			due += bps * now.Sub(last).Seconds()
			last = now
			// Whole frames only.
			n := int(due) / frame * frame
			if n > 0 {
				g.Drain(n)
				due -= float64(n)
			}
		}
	}
}
