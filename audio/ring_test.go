package audio

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/soundbox/pkg"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameCount, cfg.DMADescriptors = 48, 2
	return cfg
}

func TestRing_ManualDrain(t *testing.T) {
	var sink bytes.Buffer
	ring := NewRing(RingOptions{Sink: &sink})
	if err := ring.Configure(smallConfig()); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := ring.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	defer ring.Disable()

	if ring.Cap() != 192 {
		t.Fatalf("Cap() = %d, want 192", ring.Cap())
	}

	ctx := context.Background()
	a := bytes.Repeat([]byte{0xAA}, 98)
	b := bytes.Repeat([]byte{0xBB}, 98)
	if n, _ := ring.Write(ctx, a); n != 98 {
		t.Fatalf("Write(a) = %d", n)
	}
	// Only 94 bytes left.
	if n, _ := ring.Write(ctx, b); n != 94 {
		t.Fatalf("Write(b) = %d, want 94", n)
	}

	if got := ring.Drain(100); got != 100 {
		t.Errorf("Drain() = %d", got)
	}
	if n, _ := ring.Write(ctx, b); n != 98 {
		t.Errorf("Write after drain = %d", n)
	}
	// Wrapped contents come out in order.
	ring.Drain(ring.Buffered())
	want := append(append(append([]byte{}, a...), b[:94]...), b...)
	if !bytes.Equal(sink.Bytes(), want) {
		t.Errorf("sink got %d bytes, want %d in order", sink.Len(), len(want))
	}
}

func TestRing_WriteWaitsForSpace(t *testing.T) {
	ring := NewRing(RingOptions{})
	_ = ring.Configure(smallConfig())
	_ = ring.Enable()
	defer ring.Disable()

	ctx := context.Background()
	_, _ = ring.Write(ctx, make([]byte, 192))

	var wg sync.WaitGroup
	var n int
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, _ = ring.Write(ctx, make([]byte, 98))
	}()

	time.Sleep(10 * time.Millisecond)
	ring.Drain(20)
	wg.Wait()
	if n != 20 {
		t.Errorf("Write() = %d, want 20", n)
	}
}

func TestRing_WriteContextDone(t *testing.T) {
	ring := NewRing(RingOptions{})
	_ = ring.Configure(smallConfig())
	_ = ring.Enable()
	defer ring.Disable()

	_, _ = ring.Write(context.Background(), make([]byte, 192))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := ring.Write(ctx, []byte{1}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Write() error = %v, want DeadlineExceeded", err)
	}
}

func TestRing_Allocation(t *testing.T) {
	ring := NewRing(RingOptions{MaxBytes: 100})
	if err := ring.Configure(smallConfig()); !errors.Is(err, pkg.ErrChannelAllocationFailed) {
		t.Errorf("Configure() error = %v, want ErrChannelAllocationFailed", err)
	}
	if err := ring.Enable(); !errors.Is(err, pkg.ErrChannelAllocationFailed) {
		t.Errorf("Enable() unconfigured error = %v", err)
	}
	if _, err := ring.Write(context.Background(), []byte{1}); !errors.Is(err, pkg.ErrChannelNotReady) {
		t.Errorf("Write() disabled error = %v", err)
	}
}

func TestRing_ClockDrains(t *testing.T) {
	ring := NewRing(RingOptions{Speed: 1})
	_ = ring.Configure(DefaultConfig())
	if err := ring.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	_, _ = ring.Write(context.Background(), make([]byte, 960))
	deadline := time.Now().Add(2 * time.Second)
	for ring.Buffered() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ring.Buffered() != 0 {
		t.Errorf("Buffered() = %d after clock ran", ring.Buffered())
	}
	if err := ring.Disable(); err != nil {
		t.Errorf("Disable() error = %v", err)
	}
}

// A slow clock cannot keep up with real-time payloads; the relay reports
// short writes without failing.
func TestRelay_SlowClockUnderrun(t *testing.T) {
	ring := NewRing(RingOptions{Speed: 0.25})
	r := NewRelay(ring)
	if err := r.Configure(smallConfig()); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	defer r.Close()

	payload := make([]byte, 98)
	short := false
	for range 20 {
		n, err := r.Relay(context.Background(), payload)
		if err != nil {
			t.Fatalf("Relay() error = %v", err)
		}
		if n < len(payload) {
			short = true
			break
		}
	}
	if !short {
		t.Fatal("no short write under a slow clock")
	}
	if r.Stats().Underruns == 0 {
		t.Error("underrun not counted")
	}
}
