//go:build !tinygo && cgo

package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	ebitenaudio "github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/ardnew/soundbox/pkg"
)

// speakerBuffer is the player's own buffer ahead of the ring.
const speakerBuffer = 50 * time.Millisecond

var (
	contextOnce sync.Once
	playerCtx   *ebitenaudio.Context
)

// playerContext returns the process-wide audio context. Ebiten allows one
// context per process and its sample rate is fixed.
func playerContext() *ebitenaudio.Context {
	contextOnce.Do(func() {
		playerCtx = ebitenaudio.NewContext(SampleRate)
	})
	return playerCtx
}

// Speaker plays relayed PCM on the desktop audio device. The player pulls
// from a [Ring] and acts as its sample clock. It implements [Channel].
type Speaker struct {
	ring *Ring

	mu       sync.Mutex
	player   *ebitenaudio.Player
	volume   float64
	channels uint8
}

var _ Channel = (*Speaker)(nil)

// NewSpeaker returns a speaker at the given volume in [0, 1].
func NewSpeaker(volume float64) (*Speaker, error) {
	return &Speaker{
		ring:   NewRing(RingOptions{}),
		volume: pkg.Clamp(volume, 0, 1),
	}, nil
}

// Configure implements [Channel].
func (s *Speaker) Configure(cfg Config) error {
	if err := s.ring.Configure(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.channels = cfg.Channels
	s.mu.Unlock()
	return nil
}

// Enable starts playback.
func (s *Speaker) Enable() error {
	if err := s.ring.Enable(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		return nil
	}
	widen := s.channels == 1
	p, err := playerContext().NewPlayer(newStereoReader(s.ring, widen))
	if err != nil {
		return fmt.Errorf("speaker player: %w: %w", pkg.ErrChannelAllocationFailed, err)
	}
	p.SetBufferSize(speakerBuffer)
	p.SetVolume(s.volume)
	p.Play()
	s.player = p
	pkg.LogDebug(pkg.ComponentAudio, "speaker playing", "volume", s.volume)
	return nil
}

// Disable stops playback.
func (s *Speaker) Disable() error {
	s.mu.Lock()
	p := s.player
	s.player = nil
	s.mu.Unlock()

	err := s.ring.Disable()
	if p != nil {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Write implements [Channel].
func (s *Speaker) Write(ctx context.Context, p []byte) (int, error) {
	return s.ring.Write(ctx, p)
}
