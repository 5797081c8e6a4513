package audio

import "context"

// Channel is a hardware audio output channel.
type Channel interface {
	// Configure allocates the channel for cfg.
	Configure(cfg Config) error

	// Enable starts the sample clock.
	Enable() error

	// Disable stops the sample clock.
	Disable() error

	// Write waits until the channel has free space or ctx is done, then
	// writes as much of p as fits and returns the count.
	Write(ctx context.Context, p []byte) (int, error)
}
