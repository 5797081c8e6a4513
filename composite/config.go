package composite

import (
	"time"

	"github.com/ardnew/soundbox/audio"
	"github.com/ardnew/soundbox/descriptor"
)

// Config defaults.
const (
	DefaultIdleInterval  = time.Millisecond
	DefaultMountAttempts = 3
	DefaultMountBackoff  = 50 * time.Millisecond
)

// Config configures a [Device].
type Config struct {
	Descriptors descriptor.Options
	Audio       audio.Config

	// IdleInterval is how long the service loop sleeps when Task dispatched
	// nothing.
	IdleInterval time.Duration

	// MountAttempts bounds the boot-time mount retries.
	MountAttempts uint

	// MountBackoff is the first retry delay; later delays grow
	// exponentially.
	MountBackoff time.Duration
}

// DefaultConfig returns the stock soundbox configuration.
func DefaultConfig() Config {
	return Config{
		Descriptors:   descriptor.DefaultOptions(),
		Audio:         audio.DefaultConfig(),
		IdleInterval:  DefaultIdleInterval,
		MountAttempts: DefaultMountAttempts,
		MountBackoff:  DefaultMountBackoff,
	}
}
