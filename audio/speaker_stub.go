//go:build tinygo || !cgo

package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardnew/soundbox/pkg"
)

// ErrSpeakerUnavailable indicates the binary was built without an audio
// backend.
var ErrSpeakerUnavailable = errors.New("speaker requires cgo")

// Speaker is unavailable without cgo.
type Speaker struct{}

var _ Channel = (*Speaker)(nil)

// NewSpeaker always fails without cgo.
func NewSpeaker(float64) (*Speaker, error) {
	return nil, fmt.Errorf("%w: %w", pkg.ErrChannelAllocationFailed, ErrSpeakerUnavailable)
}

func (*Speaker) Configure(Config) error { return ErrSpeakerUnavailable }
func (*Speaker) Enable() error          { return ErrSpeakerUnavailable }
func (*Speaker) Disable() error         { return nil }

func (*Speaker) Write(context.Context, []byte) (int, error) {
	return 0, ErrSpeakerUnavailable
}
