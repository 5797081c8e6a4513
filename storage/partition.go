package storage

import (
	"fmt"

	"tinygo.org/x/tinyfs"

	"github.com/ardnew/soundbox/pkg"
)

// PartitionType is the top-level partition kind.
type PartitionType uint8

// Partition types.
const (
	PartitionTypeApp  PartitionType = 0x00
	PartitionTypeData PartitionType = 0x01
)

// PartitionSubtype refines a partition type.
type PartitionSubtype uint8

// Data partition subtypes.
const (
	SubtypePHY      PartitionSubtype = 0x01
	SubtypeNVS      PartitionSubtype = 0x02
	SubtypeFAT      PartitionSubtype = 0x81
	SubtypeLittleFS PartitionSubtype = 0x83
	SubtypeAny      PartitionSubtype = 0xFF
)

// Partition describes one region of the flash.
type Partition struct {
	Label   string
	Type    PartitionType
	Subtype PartitionSubtype
	Offset  int64
	Size    int64
}

// String returns a short description of the partition.
func (p Partition) String() string {
	return fmt.Sprintf("%s(type=0x%02X subtype=0x%02X offset=0x%X size=0x%X)",
		p.Label, uint8(p.Type), uint8(p.Subtype), p.Offset, p.Size)
}

// Table is a partition table over a block device.
type Table struct {
	dev   tinyfs.BlockDevice
	parts []Partition
}

// NewTable validates parts against dev. Partitions must be erase-block
// aligned, lie within the device and not overlap.
func NewTable(dev tinyfs.BlockDevice, parts ...Partition) (*Table, error) {
	eb := dev.EraseBlockSize()
	for i, p := range parts {
		if p.Offset%eb != 0 || p.Size%eb != 0 || p.Size <= 0 {
			return nil, fmt.Errorf("partition %s not aligned to %d: %w", p, eb, pkg.ErrInvalidParameter)
		}
		if p.Offset < 0 || p.Offset+p.Size > dev.Size() {
			return nil, fmt.Errorf("partition %s: %w", p, pkg.ErrOutOfRange)
		}
		for _, q := range parts[:i] {
			if p.Offset < q.Offset+q.Size && q.Offset < p.Offset+p.Size {
				return nil, fmt.Errorf("partition %s overlaps %s: %w", p, q, pkg.ErrInvalidParameter)
			}
		}
	}
	return &Table{dev: dev, parts: append([]Partition(nil), parts...)}, nil
}

// DefaultTable lays out a small application image followed by a FAT data
// partition labeled "storage" that fills the rest of dev.
func DefaultTable(dev tinyfs.BlockDevice) (*Table, error) {
	eb := dev.EraseBlockSize()
	nvs := Partition{Label: "nvs", Type: PartitionTypeData, Subtype: SubtypeNVS, Offset: 0, Size: 6 * eb}
	phy := Partition{Label: "phy_init", Type: PartitionTypeData, Subtype: SubtypePHY, Offset: nvs.Size, Size: eb}
	data := Partition{
		Label:   "storage",
		Type:    PartitionTypeData,
		Subtype: SubtypeFAT,
		Offset:  phy.Offset + phy.Size,
	}
	data.Size = dev.Size() - data.Offset
	return NewTable(dev, nvs, phy, data)
}

// Partitions returns the table entries.
func (t *Table) Partitions() []Partition {
	return append([]Partition(nil), t.parts...)
}

// Find returns the first partition matching typ and sub. SubtypeAny matches
// any subtype; an empty label matches any label.
func (t *Table) Find(typ PartitionType, sub PartitionSubtype, label string) (Partition, error) {
	for _, p := range t.parts {
		if p.Type != typ {
			continue
		}
		if sub != SubtypeAny && p.Subtype != sub {
			continue
		}
		if label != "" && p.Label != label {
			continue
		}
		return p, nil
	}
	return Partition{}, fmt.Errorf("type 0x%02X subtype 0x%02X label %q: %w",
		uint8(typ), uint8(sub), label, pkg.ErrPartitionNotFound)
}

// Open returns a block device restricted to p.
func (t *Table) Open(p Partition) tinyfs.BlockDevice {
	return &section{dev: t.dev, off: p.Offset, size: p.Size}
}

// section is a window onto part of a block device.
type section struct {
	dev  tinyfs.BlockDevice
	off  int64
	size int64
}

func (s *section) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= s.size {
		return 0, fmt.Errorf("partition read at %d: %w", off, pkg.ErrOutOfRange)
	}
	return s.dev.ReadAt(p[:min(int64(len(p)), s.size-off)], s.off+off)
}

func (s *section) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > s.size {
		return 0, fmt.Errorf("partition write at %d+%d: %w", off, len(p), pkg.ErrOutOfRange)
	}
	return s.dev.WriteAt(p, s.off+off)
}

func (s *section) Size() int64           { return s.size }
func (s *section) WriteBlockSize() int64 { return s.dev.WriteBlockSize() }
func (s *section) EraseBlockSize() int64 { return s.dev.EraseBlockSize() }

func (s *section) EraseBlocks(start, count int64) error {
	eb := s.dev.EraseBlockSize()
	if start < 0 || count < 0 || (start+count)*eb > s.size {
		return fmt.Errorf("partition erase blocks %d+%d: %w", start, count, pkg.ErrOutOfRange)
	}
	return s.dev.EraseBlocks(s.off/eb+start, count)
}
