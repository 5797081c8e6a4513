package transport

import (
	"errors"
	"testing"

	"github.com/ardnew/soundbox/descriptor"
	"github.com/ardnew/soundbox/pkg"
)

// recordingHandler captures class events.
type recordingHandler struct {
	lineStates []bool
	itfs       []uint8
}

func (r *recordingHandler) MountChanged(bool)     {}
func (r *recordingHandler) DataAvailable(uint8)   {}
func (r *recordingHandler) AudioPayload(p []byte) {}
func (r *recordingHandler) LineStateChanged(itf uint8, dtr, rts bool) {
	r.lineStates = append(r.lineStates, dtr)
	r.itfs = append(r.itfs, itf)
}

func newDispatcher(t *testing.T) (*Dispatcher, *recordingHandler) {
	t.Helper()
	opts := descriptor.DefaultOptions()
	opts.Serial = "0001"
	set, err := descriptor.Build(opts)
	if err != nil {
		t.Fatal(err)
	}
	h := &recordingHandler{}
	return NewDispatcher(set, h), h
}

func TestDispatcher_ControlLineState(t *testing.T) {
	d, h := newDispatcher(t)

	for _, dtr := range []bool{true, false} {
		var s SetupPacket
		ControlLineStateSetup(&s, 1, dtr, false)
		if _, err := d.HandleSetup(&s, nil); err != nil {
			t.Fatalf("HandleSetup() error = %v", err)
		}
		if d.DTR() != dtr {
			t.Errorf("DTR() = %v, want %v", d.DTR(), dtr)
		}
	}

	if len(h.lineStates) != 2 || !h.lineStates[0] || h.lineStates[1] {
		t.Errorf("line states = %v, want [true false]", h.lineStates)
	}
	if h.itfs[0] != 1 {
		t.Errorf("interface = %d, want 1", h.itfs[0])
	}
}

func TestDispatcher_LineCoding(t *testing.T) {
	d, _ := newDispatcher(t)

	lc := LineCoding{DTERate: 9600, DataBits: 8}
	var buf [LineCodingSize]byte
	lc.MarshalTo(buf[:])

	set := SetupPacket{RequestType: 0x21, Request: RequestSetLineCoding, Index: 1, Length: LineCodingSize}
	if _, err := d.HandleSetup(&set, buf[:]); err != nil {
		t.Fatalf("SET_LINE_CODING error = %v", err)
	}

	get := SetupPacket{RequestType: 0xA1, Request: RequestGetLineCoding, Index: 1, Length: LineCodingSize}
	resp, err := d.HandleSetup(&get, nil)
	if err != nil {
		t.Fatalf("GET_LINE_CODING error = %v", err)
	}
	var got LineCoding
	if err := ParseLineCoding(resp, &got); err != nil || got != lc {
		t.Errorf("GET_LINE_CODING = %+v (%v), want %+v", got, err, lc)
	}
}

func TestDispatcher_Descriptors(t *testing.T) {
	d, _ := newDispatcher(t)

	tests := []struct {
		name    string
		typ     uint8
		idx     uint8
		length  uint16
		wantLen int
	}{
		{"device", descriptor.TypeDevice, 0, 64, 18},
		{"config header", descriptor.TypeConfiguration, 0, 9, 9},
		{"config full", descriptor.TypeConfiguration, 0, 0xFFFF, 237},
		{"language", descriptor.TypeString, 0, 255, 4},
		{"product", descriptor.TypeString, descriptor.StringProduct, 255, 2 + 2*len("Soundbox")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s SetupPacket
			GetDescriptorSetup(&s, tt.typ, tt.idx, tt.length)
			resp, err := d.HandleSetup(&s, nil)
			if err != nil {
				t.Fatalf("HandleSetup() error = %v", err)
			}
			if len(resp) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(resp), tt.wantLen)
			}
		})
	}
}

func TestDispatcher_Rejects(t *testing.T) {
	d, _ := newDispatcher(t)

	tests := []struct {
		name  string
		setup SetupPacket
		want  error
	}{
		{"unknown string", func() SetupPacket {
			var s SetupPacket
			GetDescriptorSetup(&s, descriptor.TypeString, 9, 255)
			return s
		}(), pkg.ErrInvalidRequest},
		{"audio class request", SetupPacket{RequestType: 0x21, Request: 0x01, Index: 3}, pkg.ErrInvalidInterface},
		{"missing interface", SetupPacket{RequestType: 0x21, Request: 0x01, Index: 9}, pkg.ErrInvalidInterface},
		{"unknown cdc request", SetupPacket{RequestType: 0x21, Request: 0x42, Index: 1}, pkg.ErrInvalidRequest},
		{"endpoint recipient", SetupPacket{RequestType: 0x22, Request: 0x01}, pkg.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.HandleSetup(&tt.setup, nil); !errors.Is(err, tt.want) {
				t.Errorf("HandleSetup() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDispatcher_MSCMaxLUN(t *testing.T) {
	d, _ := newDispatcher(t)
	s := SetupPacket{RequestType: 0xA1, Request: RequestGetMaxLUN, Index: 0, Length: 1}
	resp, err := d.HandleSetup(&s, nil)
	if err != nil || len(resp) != 1 || resp[0] != 0 {
		t.Errorf("GET_MAX_LUN = %v, %v; want [0]", resp, err)
	}
}
