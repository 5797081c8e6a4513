// Package config loads soundbox settings from SOUNDBOX_* environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ardnew/soundbox/audio"
	"github.com/ardnew/soundbox/composite"
	"github.com/ardnew/soundbox/descriptor"
	"github.com/ardnew/soundbox/pkg"
)

// Prefix is prepended to every variable name.
const Prefix = "SOUNDBOX_"

// Config is the environment configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"LOG_FILE"`

	// FlashImage is the file backing the simulated flash; empty keeps it
	// in memory.
	FlashImage          string `env:"FLASH_IMAGE"`
	FlashSize           int64  `env:"FLASH_SIZE"             envDefault:"2097152"`
	PartitionLabel      string `env:"PARTITION_LABEL"`
	FormatIfMountFailed bool   `env:"FORMAT_IF_MOUNT_FAILED" envDefault:"true"`

	MountAttempts uint          `env:"MOUNT_ATTEMPTS" envDefault:"3"`
	MountBackoff  time.Duration `env:"MOUNT_BACKOFF"  envDefault:"50ms"`
	IdleInterval  time.Duration `env:"IDLE_INTERVAL"  envDefault:"1ms"`

	Features []string `env:"FEATURES" envDefault:"cdc,msc,audio" envSeparator:","`
	Serial   string   `env:"SERIAL"`

	AudioChannels    uint8         `env:"AUDIO_CHANNELS"     envDefault:"1"`
	AudioFrames      int           `env:"AUDIO_FRAMES"       envDefault:"240"`
	AudioDescriptors int           `env:"AUDIO_DESCRIPTORS"  envDefault:"6"`
	AudioPolicy      string        `env:"AUDIO_POLICY"       envDefault:"block"`
	AudioDropTimeout time.Duration `env:"AUDIO_DROP_TIMEOUT" envDefault:"2ms"`
	AudioSpeed       float64       `env:"AUDIO_SPEED"        envDefault:"1"`

	// Speaker plays relayed audio on the desktop output device.
	Speaker bool    `env:"SPEAKER" envDefault:"false"`
	Volume  float64 `env:"VOLUME"  envDefault:"0.5"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	return pkg.ParseLogLevel(c.LogLevel)
}

// Format returns the configured log format.
func (c Config) Format() pkg.LogFormat {
	if c.LogFormat == "json" {
		return pkg.LogFormatJSON
	}
	return pkg.LogFormatText
}

// Composite returns the orchestrator configuration.
func (c Config) Composite() (composite.Config, error) {
	features, err := descriptor.ParseFeatures(c.Features...)
	if err != nil {
		return composite.Config{}, fmt.Errorf("%sFEATURES: %w", Prefix, err)
	}
	policy, err := audio.ParsePolicy(c.AudioPolicy)
	if err != nil {
		return composite.Config{}, fmt.Errorf("%sAUDIO_POLICY: %w", Prefix, err)
	}

	cfg := composite.DefaultConfig()
	cfg.Descriptors.Features = features
	cfg.Descriptors.AudioChannels = c.AudioChannels
	if c.Serial != "" {
		cfg.Descriptors.Serial = c.Serial
	}
	cfg.Audio.Channels = c.AudioChannels
	cfg.Audio.FrameCount = c.AudioFrames
	cfg.Audio.DMADescriptors = c.AudioDescriptors
	cfg.Audio.Policy = policy
	cfg.Audio.DropTimeout = c.AudioDropTimeout
	cfg.IdleInterval = c.IdleInterval
	cfg.MountAttempts = c.MountAttempts
	cfg.MountBackoff = c.MountBackoff
	return cfg, nil
}
