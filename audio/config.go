package audio

import (
	"fmt"
	"time"

	"github.com/ardnew/soundbox/pkg"
)

// Fixed audio contract of the speaker function.
const (
	SampleRate    = 48000
	BitsPerSample = 16
	MaxChannels   = 2
)

// MaxDMABufferBytes is the largest buffer a single DMA descriptor can hold.
const MaxDMABufferBytes = 4092

// Config defaults.
const (
	DefaultFrameCount     = 240 // 5 ms at 48 kHz
	DefaultDMADescriptors = 6
	DefaultDropTimeout    = 2 * time.Millisecond
)

// Policy selects how [Relay.Relay] waits for ring space.
type Policy int

// Backpressure policies.
const (
	// PolicyBlock waits without bound for the channel to accept data.
	PolicyBlock Policy = iota
	// PolicyDrop waits at most DropTimeout, then drops what did not fit.
	PolicyDrop
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyBlock:
		return "block"
	case PolicyDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a policy name to a [Policy].
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "block", "":
		return PolicyBlock, nil
	case "drop":
		return PolicyDrop, nil
	default:
		return 0, fmt.Errorf("policy %q: %w", name, pkg.ErrInvalidParameter)
	}
}

// Config is the running configuration of an audio channel.
type Config struct {
	SampleRate     uint32
	BitsPerSample  uint8
	Channels       uint8
	FrameCount     int // frames per DMA descriptor
	DMADescriptors int
	Policy         Policy
	DropTimeout    time.Duration
}

// DefaultConfig returns the mono 48 kHz / 16-bit configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:     SampleRate,
		BitsPerSample:  BitsPerSample,
		Channels:       1,
		FrameCount:     DefaultFrameCount,
		DMADescriptors: DefaultDMADescriptors,
		Policy:         PolicyBlock,
		DropTimeout:    DefaultDropTimeout,
	}
}

// BytesPerFrame returns the size of one sample across all channels.
func (c Config) BytesPerFrame() int {
	return int(c.Channels) * int(c.BitsPerSample) / 8
}

// BytesPerSecond returns the PCM data rate.
func (c Config) BytesPerSecond() int {
	return int(c.SampleRate) * c.BytesPerFrame()
}

// DescriptorBytes returns the size of one DMA descriptor buffer.
func (c Config) DescriptorBytes() int {
	return c.FrameCount * c.BytesPerFrame()
}

// BufferBytes returns the total ring size.
func (c Config) BufferBytes() int {
	return c.DMADescriptors * c.DescriptorBytes()
}

// Latency returns the time needed to play a full ring.
func (c Config) Latency() time.Duration {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return time.Duration(c.BufferBytes()) * time.Second / time.Duration(c.BytesPerSecond())
}

// Validate checks c against the fixed contract and DMA sizing limits.
func (c Config) Validate() error {
	switch {
	case c.SampleRate != SampleRate:
		return fmt.Errorf("sample rate %d: %w", c.SampleRate, pkg.ErrInvalidConfig)
	case c.BitsPerSample != BitsPerSample:
		return fmt.Errorf("bits per sample %d: %w", c.BitsPerSample, pkg.ErrInvalidConfig)
	case c.Channels != pkg.Clamp(c.Channels, 1, MaxChannels):
		return fmt.Errorf("channels %d: %w", c.Channels, pkg.ErrInvalidConfig)
	case c.FrameCount <= 0 || c.DescriptorBytes() > MaxDMABufferBytes:
		return fmt.Errorf("frame count %d (%d bytes per descriptor, max %d): %w",
			c.FrameCount, c.DescriptorBytes(), MaxDMABufferBytes, pkg.ErrInvalidConfig)
	case c.DMADescriptors < 2:
		return fmt.Errorf("dma descriptors %d: %w", c.DMADescriptors, pkg.ErrInvalidConfig)
	case c.Policy != PolicyBlock && c.Policy != PolicyDrop:
		return fmt.Errorf("policy %d: %w", c.Policy, pkg.ErrInvalidConfig)
	case c.Policy == PolicyDrop && c.DropTimeout <= 0:
		return fmt.Errorf("drop timeout %v: %w", c.DropTimeout, pkg.ErrInvalidConfig)
	}
	return nil
}
