package transport

import (
	"tinygo.org/x/drivers"
)

// Port exposes one CDC interface of a [Transport] as a [drivers.UART].
type Port struct {
	t   Transport
	itf uint8
}

var _ drivers.UART = (*Port)(nil)

// NewPort returns the serial port for CDC interface itf of t.
func NewPort(t Transport, itf uint8) *Port {
	return &Port{t: t, itf: itf}
}

// Read drains up to len(p) received bytes. It does not block.
func (p *Port) Read(b []byte) (int, error) {
	return p.t.Read(p.itf, b)
}

// Write queues b for transmission to the host.
func (p *Port) Write(b []byte) (int, error) {
	return p.t.Write(p.itf, b)
}

// Buffered returns the number of received bytes waiting to be read.
func (p *Port) Buffered() int {
	return p.t.Available(p.itf)
}

// Interface returns the CDC interface number.
func (p *Port) Interface() uint8 {
	return p.itf
}
