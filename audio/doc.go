// Package audio relays USB audio payloads into a DMA-backed output channel.
//
// The USB speaker function delivers 48 kHz, 16-bit little-endian PCM in
// isochronous packets. Each packet is handed to [Relay.Relay] from inside the
// transport's service loop and written to a [Channel] in one call:
//
//	ring := audio.NewRing(audio.RingOptions{Speed: 1})
//	relay := audio.NewRelay(ring)
//	if err := relay.Configure(audio.DefaultConfig()); err != nil {
//	    return err
//	}
//	n, err := relay.Relay(ctx, payload)
//
// A write shorter than the payload is an underrun: the remainder is dropped,
// counted in [Stats] and logged, but the call still succeeds. The wait for
// free ring space is governed by the configured [Policy].
//
// [Ring] simulates the hardware DMA ring and its sample clock. [Speaker]
// plays the ring through the desktop audio device when cgo is available.
package audio
