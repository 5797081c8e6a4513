package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/soundbox/pkg"
)

// Standard request codes.
const (
	RequestGetDescriptor    = 0x06
	RequestSetConfiguration = 0x09
	RequestSetInterface     = 0x0B
)

// Request type fields.
const (
	RequestDirectionHostToDevice = 0x00
	RequestDirectionDeviceToHost = 0x80

	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20

	RequestRecipientDevice    = 0x00
	RequestRecipientInterface = 0x01

	RequestTypeTypeMask      = 0x60
	RequestTypeRecipientMask = 0x1F
)

// CDC class requests.
const (
	RequestSetLineCoding       = 0x20
	RequestGetLineCoding       = 0x21
	RequestSetControlLineState = 0x22
	RequestSendBreak           = 0x23
)

// Mass-storage class requests.
const (
	RequestBulkOnlyReset = 0xFF
	RequestGetMaxLUN     = 0xFE
)

// Control line state bits for SET_CONTROL_LINE_STATE.
const (
	ControlLineDTR = 1 << 0 // Data Terminal Ready
	ControlLineRTS = 1 << 1 // Request To Send
)

// SetupPacket represents an 8-byte USB SETUP packet.
type SetupPacket struct {
	RequestType uint8 // bmRequestType: direction, type, recipient
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into out.
func ParseSetupPacket(data []byte, out *SetupPacket) error {
	if len(data) < SetupPacketSize {
		return pkg.ErrSetupPacketTooShort
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = binary.LittleEndian.Uint16(data[2:4])
	out.Index = binary.LittleEndian.Uint16(data[4:6])
	out.Length = binary.LittleEndian.Uint16(data[6:8])
	return nil
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupPacketSize
}

// IsClass reports whether this is a class-specific request.
func (s *SetupPacket) IsClass() bool {
	return s.RequestType&RequestTypeTypeMask == RequestTypeClass
}

// IsInterfaceRecipient reports whether the request targets an interface.
func (s *SetupPacket) IsInterfaceRecipient() bool {
	return s.RequestType&RequestTypeRecipientMask == RequestRecipientInterface
}

// InterfaceNumber returns the interface number from wIndex.
func (s *SetupPacket) InterfaceNumber() uint8 {
	return uint8(s.Index)
}

// String returns a human-readable representation of the setup packet.
func (s *SetupPacket) String() string {
	return fmt.Sprintf("SETUP[0x%02X] Request=0x%02X Value=0x%04X Index=0x%04X Length=%d",
		s.RequestType, s.Request, s.Value, s.Index, s.Length)
}

// GetDescriptorSetup initializes out as a GET_DESCRIPTOR setup packet.
func GetDescriptorSetup(out *SetupPacket, descType, descIndex uint8, length uint16) {
	out.RequestType = RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientDevice
	out.Request = RequestGetDescriptor
	out.Value = uint16(descType)<<8 | uint16(descIndex)
	out.Index = 0
	out.Length = length
}

// ControlLineStateSetup initializes out as a CDC SET_CONTROL_LINE_STATE
// request for interface itf.
func ControlLineStateSetup(out *SetupPacket, itf uint8, dtr, rts bool) {
	out.RequestType = RequestDirectionHostToDevice | RequestTypeClass | RequestRecipientInterface
	out.Request = RequestSetControlLineState
	out.Value = 0
	if dtr {
		out.Value |= ControlLineDTR
	}
	if rts {
		out.Value |= ControlLineRTS
	}
	out.Index = uint16(itf)
	out.Length = 0
}

// LineCoding represents the CDC serial line configuration.
type LineCoding struct {
	DTERate    uint32 // Baud rate
	CharFormat uint8  // Stop bits: 0=1, 1=1.5, 2=2
	ParityType uint8  // 0=None, 1=Odd, 2=Even, 3=Mark, 4=Space
	DataBits   uint8
}

// LineCodingSize is the size of LineCoding in bytes.
const LineCodingSize = 7

// DefaultLineCoding is 115200 8N1.
var DefaultLineCoding = LineCoding{DTERate: 115200, DataBits: 8}

// MarshalTo writes the LineCoding to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (lc *LineCoding) MarshalTo(buf []byte) int {
	if len(buf) < LineCodingSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], lc.DTERate)
	buf[4] = lc.CharFormat
	buf[5] = lc.ParityType
	buf[6] = lc.DataBits
	return LineCodingSize
}

// ParseLineCoding parses LineCoding from data.
func ParseLineCoding(data []byte, out *LineCoding) error {
	if len(data) < LineCodingSize {
		return pkg.ErrBufferTooSmall
	}
	out.DTERate = binary.LittleEndian.Uint32(data[0:4])
	out.CharFormat = data[4]
	out.ParityType = data[5]
	out.DataBits = data[6]
	return nil
}
