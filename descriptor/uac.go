package descriptor

import "encoding/binary"

// Audio class 2.0 codes.
const (
	AudioProtocolV2 = 0x20

	AudioSubclassControl   = 0x01
	AudioSubclassStreaming = 0x02

	// Class-specific AC interface subtypes.
	AudioACHeader         = 0x01
	AudioACInputTerminal  = 0x02
	AudioACOutputTerminal = 0x03
	AudioACFeatureUnit    = 0x06
	AudioACClockSource    = 0x0A

	// Class-specific AS interface subtypes.
	AudioASGeneral    = 0x01
	AudioASFormatType = 0x02

	// AudioEPGeneral is the class-specific isochronous endpoint subtype.
	AudioEPGeneral = 0x01

	AudioVersion          = 0x0200 // bcdADC 2.00
	AudioCategorySpeaker  = 0x01   // Desktop speaker
	AudioTermUSBStreaming = 0x0101
	AudioTermSpeaker      = 0x0301
	AudioFormatTypeI      = 0x01
	AudioFormatPCM        = 0x00000001

	AudioClockAttrInternalFixed = 0x01
	AudioClockCtrlFreqRead      = 0x01
	AudioInTermCtrlConnector    = 0x0400
	AudioFUCtrlMuteVolume       = 0x0000000F
	AudioLockDelayMillisec      = 0x01
)

// Entity identifiers in the speaker topology:
// USB streaming input terminal -> feature unit -> speaker output terminal.
const (
	AudioEntityInputTerminal  = 0x01
	AudioEntityFeatureUnit    = 0x02
	AudioEntityOutputTerminal = 0x03
	AudioEntityClock          = 0x04
)

// Fixed speaker stream format.
const (
	AudioSampleRate     = 48000
	AudioBytesPerSample = 2
	AudioBitResolution  = 16
)

const (
	audioClockLength   = 8
	audioInTermLength  = 17
	audioOutTermLength = 12
	audioCSACLength    = 9
	audioCSASLength    = 16
	audioFormatLength  = 6
	audioCSEPLength    = 8
)

func audioFeatureUnitLength(channels uint8) int {
	return 6 + (int(channels)+1)*4
}

// AudioLength returns the size of the UAC2 speaker function block for the
// given channel count.
func AudioLength(channels uint8) int {
	return IADSize + InterfaceDescriptorSize + audioCSACLength +
		audioClockLength + audioInTermLength + audioOutTermLength + audioFeatureUnitLength(channels) +
		2*InterfaceDescriptorSize + audioCSASLength + audioFormatLength +
		EndpointDescriptorSize + audioCSEPLength + EndpointDescriptorSize
}

// AudioEndpointSize returns the isochronous OUT packet size for one
// full-speed frame at 48 kHz with one extra sample of headroom.
func AudioEndpointSize(channels uint8) uint16 {
	return uint16((AudioSampleRate/1000 + 1) * AudioBytesPerSample * int(channels))
}

// AppendAudioSpeaker appends a UAC2 speaker function with feedback: IAD,
// audio control interface at itf with its clock and terminal topology, and
// the streaming interface at itf+1 (alt 0 idle, alt 1 active) carrying an
// asynchronous isochronous OUT endpoint and its feedback IN endpoint.
func AppendAudioSpeaker(buf []byte, itf, strIdx, channels, epOut, epFeedback uint8) []byte {
	buf = appendMarshal(buf, IADSize, &InterfaceAssociationDescriptor{
		FirstInterface:   itf,
		InterfaceCount:   2,
		FunctionClass:    ClassAudio,
		FunctionProtocol: AudioProtocolV2,
	})
	buf = appendMarshal(buf, InterfaceDescriptorSize, &InterfaceDescriptor{
		InterfaceNumber:   itf,
		InterfaceClass:    ClassAudio,
		InterfaceSubClass: AudioSubclassControl,
		InterfaceProtocol: AudioProtocolV2,
		InterfaceIndex:    strIdx,
	})

	fu := audioFeatureUnitLength(channels)
	acTotal := audioCSACLength + audioClockLength + audioInTermLength + audioOutTermLength + fu

	// Class-specific AC header
	buf = append(buf, audioCSACLength, TypeCSInterface, AudioACHeader)
	buf = binary.LittleEndian.AppendUint16(buf, AudioVersion)
	buf = append(buf, AudioCategorySpeaker)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(acTotal))
	buf = append(buf, 0)

	// Clock source
	buf = append(buf, audioClockLength, TypeCSInterface, AudioACClockSource,
		AudioEntityClock, AudioClockAttrInternalFixed, AudioClockCtrlFreqRead,
		AudioEntityInputTerminal, 0)

	// Input terminal
	buf = append(buf, audioInTermLength, TypeCSInterface, AudioACInputTerminal, AudioEntityInputTerminal)
	buf = binary.LittleEndian.AppendUint16(buf, AudioTermUSBStreaming)
	buf = append(buf, 0, AudioEntityClock, channels)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = append(buf, 0)
	buf = binary.LittleEndian.AppendUint16(buf, AudioInTermCtrlConnector)
	buf = append(buf, 0)

	// Output terminal
	buf = append(buf, audioOutTermLength, TypeCSInterface, AudioACOutputTerminal, AudioEntityOutputTerminal)
	buf = binary.LittleEndian.AppendUint16(buf, AudioTermSpeaker)
	buf = append(buf, AudioEntityInputTerminal, AudioEntityFeatureUnit, AudioEntityClock)
	buf = binary.LittleEndian.AppendUint16(buf, 0)
	buf = append(buf, 0)

	// Feature unit: master plus one control word per channel
	buf = append(buf, uint8(fu), TypeCSInterface, AudioACFeatureUnit, AudioEntityFeatureUnit, AudioEntityInputTerminal)
	for range int(channels) + 1 {
		buf = binary.LittleEndian.AppendUint32(buf, AudioFUCtrlMuteVolume)
	}
	buf = append(buf, 0)

	buf = appendMarshal(buf, InterfaceDescriptorSize, &InterfaceDescriptor{
		InterfaceNumber:   itf + 1,
		InterfaceClass:    ClassAudio,
		InterfaceSubClass: AudioSubclassStreaming,
		InterfaceProtocol: AudioProtocolV2,
	})
	buf = appendMarshal(buf, InterfaceDescriptorSize, &InterfaceDescriptor{
		InterfaceNumber:   itf + 1,
		AlternateSetting:  1,
		NumEndpoints:      2,
		InterfaceClass:    ClassAudio,
		InterfaceSubClass: AudioSubclassStreaming,
		InterfaceProtocol: AudioProtocolV2,
	})

	// Class-specific AS general
	buf = append(buf, audioCSASLength, TypeCSInterface, AudioASGeneral, AudioEntityInputTerminal, 0, AudioFormatTypeI)
	buf = binary.LittleEndian.AppendUint32(buf, AudioFormatPCM)
	buf = append(buf, channels)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = append(buf, 0)

	// Type I format
	buf = append(buf, audioFormatLength, TypeCSInterface, AudioASFormatType, AudioFormatTypeI,
		AudioBytesPerSample, AudioBitResolution)

	buf = appendMarshal(buf, EndpointDescriptorSize, &EndpointDescriptor{
		EndpointAddress: epOut,
		Attributes:      EndpointTypeIsochronous | EndpointSyncAsync,
		MaxPacketSize:   AudioEndpointSize(channels),
		Interval:        1,
	})

	// Class-specific isochronous endpoint
	buf = append(buf, audioCSEPLength, TypeCSEndpoint, AudioEPGeneral, 0, 0, AudioLockDelayMillisec)
	buf = binary.LittleEndian.AppendUint16(buf, 1)

	return appendMarshal(buf, EndpointDescriptorSize, &EndpointDescriptor{
		EndpointAddress: epFeedback,
		Attributes:      EndpointTypeIsochronous | EndpointUsageFeedback,
		MaxPacketSize:   4,
		Interval:        1,
	})
}
