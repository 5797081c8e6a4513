package descriptor

import "encoding/binary"

// CDC subclass, functional descriptor subtypes and capabilities.
const (
	CDCSubclassACM = 0x02

	CDCFuncHeader         = 0x00
	CDCFuncCallManagement = 0x01
	CDCFuncACM            = 0x02
	CDCFuncUnion          = 0x06

	// CDCVersion is bcdCDC 1.20.
	CDCVersion = 0x0120

	// CDCACMCapLineCoding advertises SET_LINE_CODING, GET_LINE_CODING and
	// SET_CONTROL_LINE_STATE support.
	CDCACMCapLineCoding = 0x02
)

// CDCLength is the size of the CDC-ACM function block.
const CDCLength = IADSize + InterfaceDescriptorSize + 5 + 5 + 4 + 5 +
	EndpointDescriptorSize + InterfaceDescriptorSize + 2*EndpointDescriptorSize

// AppendCDC appends a CDC-ACM function: IAD, communication interface with
// its functional descriptors and notification endpoint, and the data
// interface at itf+1 with a bulk endpoint pair.
func AppendCDC(buf []byte, itf, strIdx, epNotify uint8, notifySize uint16, epOut, epIn uint8, size uint16) []byte {
	buf = appendMarshal(buf, IADSize, &InterfaceAssociationDescriptor{
		FirstInterface:   itf,
		InterfaceCount:   2,
		FunctionClass:    ClassCDC,
		FunctionSubClass: CDCSubclassACM,
	})
	buf = appendMarshal(buf, InterfaceDescriptorSize, &InterfaceDescriptor{
		InterfaceNumber:   itf,
		NumEndpoints:      1,
		InterfaceClass:    ClassCDC,
		InterfaceSubClass: CDCSubclassACM,
		InterfaceIndex:    strIdx,
	})

	buf = append(buf, 5, TypeCSInterface, CDCFuncHeader)
	buf = binary.LittleEndian.AppendUint16(buf, CDCVersion)
	buf = append(buf, 5, TypeCSInterface, CDCFuncCallManagement, 0, itf+1)
	buf = append(buf, 4, TypeCSInterface, CDCFuncACM, CDCACMCapLineCoding)
	buf = append(buf, 5, TypeCSInterface, CDCFuncUnion, itf, itf+1)

	buf = appendMarshal(buf, EndpointDescriptorSize, &EndpointDescriptor{
		EndpointAddress: epNotify,
		Attributes:      EndpointTypeInterrupt,
		MaxPacketSize:   notifySize,
		Interval:        16,
	})
	buf = appendMarshal(buf, InterfaceDescriptorSize, &InterfaceDescriptor{
		InterfaceNumber: itf + 1,
		NumEndpoints:    2,
		InterfaceClass:  ClassCDCData,
	})
	buf = appendMarshal(buf, EndpointDescriptorSize, &EndpointDescriptor{
		EndpointAddress: epOut,
		Attributes:      EndpointTypeBulk,
		MaxPacketSize:   size,
	})
	return appendMarshal(buf, EndpointDescriptorSize, &EndpointDescriptor{
		EndpointAddress: epIn,
		Attributes:      EndpointTypeBulk,
		MaxPacketSize:   size,
	})
}
