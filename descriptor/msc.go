package descriptor

// Mass storage subclass and protocol codes.
const (
	MSCSubclassSCSI     = 0x06 // SCSI transparent command set
	MSCProtocolBulkOnly = 0x50 // Bulk-Only Transport
)

// MSCLength is the size of the mass-storage function block.
const MSCLength = InterfaceDescriptorSize + 2*EndpointDescriptorSize

// AppendMSC appends the mass-storage function: one interface with a bulk OUT
// and a bulk IN endpoint.
func AppendMSC(buf []byte, itf, strIdx, epOut, epIn uint8, size uint16) []byte {
	buf = appendMarshal(buf, InterfaceDescriptorSize, &InterfaceDescriptor{
		InterfaceNumber:   itf,
		NumEndpoints:      2,
		InterfaceClass:    ClassMassStorage,
		InterfaceSubClass: MSCSubclassSCSI,
		InterfaceProtocol: MSCProtocolBulkOnly,
		InterfaceIndex:    strIdx,
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
