package descriptor

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/ardnew/soundbox/pkg"
)

// Features is the set of enabled USB functions. Bit positions match the
// product id bitmap.
type Features uint8

// Feature bits.
const (
	FeatureCDC Features = 1 << iota
	FeatureMSC
	FeatureHID
	FeatureMIDI
	FeatureAudio
	FeatureVideo
	FeatureVendor

	// FeaturesSupported are the functions this device can present.
	FeaturesSupported = FeatureCDC | FeatureMSC | FeatureAudio
)

// Has reports whether every feature in g is enabled.
func (f Features) Has(g Features) bool { return f&g == g }

var featureNames = [...]string{"cdc", "msc", "hid", "midi", "audio", "video", "vendor"}

// ParseFeatures converts feature names ("cdc", "msc", "audio", ...) to a
// feature set.
func ParseFeatures(names ...string) (Features, error) {
	var f Features
	for _, name := range names {
		i := slices.Index(featureNames[:], strings.ToLower(strings.TrimSpace(name)))
		if i < 0 {
			return 0, fmt.Errorf("feature %q: %w", name, pkg.ErrInvalidParameter)
		}
		f |= 1 << i
	}
	return f, nil
}

// String returns the enabled feature names joined by '+'.
func (f Features) String() string {
	var on []string
	for i, name := range featureNames {
		if f&(1<<i) != 0 {
			on = append(on, name)
		}
	}
	if len(on) == 0 {
		return "none"
	}
	return strings.Join(on, "+")
}

// Device identity defaults.
const (
	VendorID         = 0x303A
	productIDBase    = 0x4008
	USBVersion       = 0x0200
	DeviceVersion    = 0x0100
	MaxPacketSize0   = 64
	BulkPacketSize   = 64
	NotifyPacketSize = 8
	MaxPowerMA       = 100
)

// ProductID derives the product id from the enabled features, so that hosts
// caching drivers by VID:PID see a distinct id per function mix.
func ProductID(f Features) uint16 {
	return productIDBase | uint16(f&0x7F)
}

// Fixed endpoint addresses.
const (
	EndpointControlOut    = 0x00
	EndpointControlIn     = 0x80
	EndpointMSCOut        = 0x01
	EndpointMSCIn         = 0x81
	EndpointCDCOut        = 0x02
	EndpointCDCIn         = 0x82
	EndpointCDCNotify     = 0x83
	EndpointAudioOut      = 0x04
	EndpointAudioFeedback = 0x84
)

// NoInterface marks a function that is not present.
const NoInterface = 0xFF

// InterfaceMap assigns interface numbers to each enabled function in the
// order MSC, CDC, audio. It is immutable once built.
type InterfaceMap struct {
	Features       Features
	MSC            uint8
	CDCControl     uint8
	CDCData        uint8
	AudioControl   uint8
	AudioStreaming uint8
	Count          uint8
}

// NewInterfaceMap numbers the interfaces for f.
func NewInterfaceMap(f Features) InterfaceMap {
	m := InterfaceMap{
		Features:       f,
		MSC:            NoInterface,
		CDCControl:     NoInterface,
		CDCData:        NoInterface,
		AudioControl:   NoInterface,
		AudioStreaming: NoInterface,
	}
	if f.Has(FeatureMSC) {
		m.MSC = m.Count
		m.Count++
	}
	if f.Has(FeatureCDC) {
		m.CDCControl, m.CDCData = m.Count, m.Count+1
		m.Count += 2
	}
	if f.Has(FeatureAudio) {
		m.AudioControl, m.AudioStreaming = m.Count, m.Count+1
		m.Count += 2
	}
	return m
}

// Endpoints returns the endpoint addresses owned by interface itf.
func (m InterfaceMap) Endpoints(itf uint8) []uint8 {
	switch {
	case itf == NoInterface:
		return nil
	case itf == m.MSC:
		return []uint8{EndpointMSCOut, EndpointMSCIn}
	case itf == m.CDCControl:
		return []uint8{EndpointCDCNotify}
	case itf == m.CDCData:
		return []uint8{EndpointCDCOut, EndpointCDCIn}
	case itf == m.AudioStreaming:
		return []uint8{EndpointAudioOut, EndpointAudioFeedback}
	}
	return nil
}

// Identity holds the strings and ids that name the device.
type Identity struct {
	VendorID     uint16
	Manufacturer string
	Product      string

	// Serial overrides the serial number. When empty, the serial number is
	// derived from UniqueID.
	Serial string

	// UniqueID is the hardware unique id, e.g. the flash chip id.
	UniqueID []byte
}

// DefaultIdentity returns the stock soundbox identity. It carries no serial
// number; set UniqueID or Serial before building.
func DefaultIdentity() Identity {
	return Identity{
		VendorID:     VendorID,
		Manufacturer: "Go Wonder",
		Product:      "Soundbox",
	}
}

// SerialNumber returns Serial, or the hex rendering of UniqueID.
func (id Identity) SerialNumber() (string, error) {
	switch {
	case id.Serial != "":
		return id.Serial, nil
	case len(id.UniqueID) > 0:
		return SerialFromUID(id.UniqueID), nil
	default:
		return "", fmt.Errorf("no serial number or unique id: %w", pkg.ErrInvalidParameter)
	}
}

// Options configures [Build].
type Options struct {
	Identity
	Features      Features
	AudioChannels uint8
}

// DefaultOptions enables all three functions with a mono speaker.
func DefaultOptions() Options {
	return Options{
		Identity:      DefaultIdentity(),
		Features:      FeaturesSupported,
		AudioChannels: 1,
	}
}

// Set is the complete descriptor set served during enumeration.
type Set struct {
	Device        DeviceDescriptor
	Configuration []byte
	Strings       StringTable
	Map           InterfaceMap
	Channels      uint8
}

// ConfigTotalLength returns the configuration descriptor length for the
// given features and speaker channel count.
func ConfigTotalLength(f Features, channels uint8) int {
	n := ConfigurationDescriptorSize
	if f.Has(FeatureMSC) {
		n += MSCLength
	}
	if f.Has(FeatureCDC) {
		n += CDCLength
	}
	if f.Has(FeatureAudio) {
		n += AudioLength(channels)
	}
	return n
}

// Build assembles the device, configuration and string descriptors.
func Build(opts Options) (*Set, error) {
	if opts.Features&^FeaturesSupported != 0 {
		return nil, fmt.Errorf("features %s: %w", opts.Features, pkg.ErrInvalidParameter)
	}
	if opts.Features.Has(FeatureAudio) && (opts.AudioChannels < 1 || opts.AudioChannels > 2) {
		return nil, fmt.Errorf("audio channels %d: %w", opts.AudioChannels, pkg.ErrInvalidParameter)
	}
	serial, err := opts.SerialNumber()
	if err != nil {
		return nil, err
	}

	m := NewInterfaceMap(opts.Features)
	total := ConfigTotalLength(opts.Features, opts.AudioChannels)

	cfg := make([]byte, 0, total)
	cfg = appendMarshal(cfg, ConfigurationDescriptorSize, &ConfigurationDescriptor{
		TotalLength:        uint16(total),
		NumInterfaces:      m.Count,
		ConfigurationValue: 1,
		Attributes:         ConfigAttrBusPowered,
		MaxPower:           MaxPowerMA / 2,
	})
	if opts.Features.Has(FeatureMSC) {
		cfg = AppendMSC(cfg, m.MSC, StringMSC, EndpointMSCOut, EndpointMSCIn, BulkPacketSize)
	}
	if opts.Features.Has(FeatureCDC) {
		cfg = AppendCDC(cfg, m.CDCControl, StringCDC, EndpointCDCNotify, NotifyPacketSize,
			EndpointCDCOut, EndpointCDCIn, BulkPacketSize)
	}
	if opts.Features.Has(FeatureAudio) {
		cfg = AppendAudioSpeaker(cfg, m.AudioControl, StringAudio, opts.AudioChannels,
			EndpointAudioOut, EndpointAudioFeedback)
	}

	s := &Set{
		Device: DeviceDescriptor{
			USBVersion:        USBVersion,
			DeviceClass:       ClassPerInterface,
			MaxPacketSize0:    MaxPacketSize0,
			VendorID:          opts.VendorID,
			ProductID:         ProductID(opts.Features),
			DeviceVersion:     DeviceVersion,
			ManufacturerIndex: StringManufacturer,
			ProductIndex:      StringProduct,
			SerialNumberIndex: StringSerial,
			NumConfigurations: 1,
		},
		Configuration: cfg,
		Strings: StringTable{
			LangID: LangIDUSEnglish,
			Strings: []string{
				opts.Manufacturer,
				opts.Product,
				serial,
				"cdc",
				"msc",
				"uac",
			},
		},
		Map:      m,
		Channels: opts.AudioChannels,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	pkg.LogDebug(pkg.ComponentDescriptor, "descriptors built",
		"features", opts.Features.String(),
		"pid", fmt.Sprintf("0x%04X", s.Device.ProductID),
		"interfaces", m.Count,
		"totalLength", total)
	return s, nil
}

// DeviceBytes returns the encoded device descriptor.
func (s *Set) DeviceBytes() []byte {
	buf := make([]byte, DeviceDescriptorSize)
	s.Device.MarshalTo(buf)
	return buf
}

// Walk yields each descriptor in a configuration blob. It stops at the first
// malformed length.
func Walk(config []byte) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for len(config) >= 2 {
			n := int(config[0])
			if n < 2 || n > len(config) {
				return
			}
			if !yield(config[:n]) {
				return
			}
			config = config[n:]
		}
	}
}

// Validate checks that the configuration descriptor agrees with the
// interface map: total length, interface count, and the endpoints declared
// under each interface.
func (s *Set) Validate() error {
	var hdr ConfigurationDescriptor
	if err := ParseConfigurationDescriptor(s.Configuration, &hdr); err != nil {
		return fmt.Errorf("configuration header: %w", err)
	}
	if int(hdr.TotalLength) != len(s.Configuration) {
		return fmt.Errorf("wTotalLength %d, encoded %d: %w",
			hdr.TotalLength, len(s.Configuration), pkg.ErrDescriptorMismatch)
	}
	if want := ConfigTotalLength(s.Map.Features, s.Channels); want != len(s.Configuration) {
		return fmt.Errorf("length %d, expected %d: %w", len(s.Configuration), want, pkg.ErrDescriptorMismatch)
	}
	if hdr.NumInterfaces != s.Map.Count {
		return fmt.Errorf("bNumInterfaces %d, map %d: %w", hdr.NumInterfaces, s.Map.Count, pkg.ErrDescriptorMismatch)
	}

	walked := 0
	seen := map[uint8]bool{}
	endpoints := map[uint8][]uint8{}
	current := uint8(NoInterface)
	for d := range Walk(s.Configuration) {
		walked += len(d)
		switch d[1] {
		case TypeInterface:
			var itf InterfaceDescriptor
			if err := ParseInterfaceDescriptor(d, &itf); err != nil {
				return err
			}
			current = itf.InterfaceNumber
			seen[current] = true
		case TypeEndpoint:
			var ep EndpointDescriptor
			if err := ParseEndpointDescriptor(d, &ep); err != nil {
				return err
			}
			endpoints[current] = append(endpoints[current], ep.EndpointAddress)
		}
	}
	if walked != len(s.Configuration) {
		return fmt.Errorf("malformed descriptor at offset %d: %w", walked, pkg.ErrDescriptorMismatch)
	}
	if len(seen) != int(s.Map.Count) {
		return fmt.Errorf("%d interfaces declared, map %d: %w", len(seen), s.Map.Count, pkg.ErrDescriptorMismatch)
	}
	for itf := range seen {
		want, got := s.Map.Endpoints(itf), endpoints[itf]
		if !slices.Equal(want, got) {
			return fmt.Errorf("interface %d endpoints %v, want %v: %w", itf, got, want, pkg.ErrDescriptorMismatch)
		}
	}
	return nil
}
