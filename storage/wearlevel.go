package storage

import (
	"fmt"

	"tinygo.org/x/tinyfs"

	"github.com/ardnew/soundbox/pkg"
)

// SectorSize is the logical sector size of a wear-leveled volume and the
// block size the USB host sees.
const SectorSize = 512

// WearLeveler attaches block remapping to a raw flash partition. The
// returned device accepts sector writes without prior erase.
type WearLeveler interface {
	Attach(part tinyfs.BlockDevice) (tinyfs.BlockDevice, error)
}

// Passthrough maps sectors 1:1 onto the partition and performs the
// read-erase-program cycle of each touched erase block in place. It does not
// spread wear and is meant for host simulation.
type Passthrough struct{}

// Attach implements [WearLeveler].
func (Passthrough) Attach(part tinyfs.BlockDevice) (tinyfs.BlockDevice, error) {
	eb := part.EraseBlockSize()
	if eb <= 0 || eb%SectorSize != 0 || part.Size()%eb != 0 {
		return nil, fmt.Errorf("erase block %d, size %d: %w", eb, part.Size(), pkg.ErrWearLevel)
	}
	return &inPlace{part: part, block: make([]byte, eb)}, nil
}

// inPlace rewrites whole erase blocks.
type inPlace struct {
	part  tinyfs.BlockDevice
	block []byte
}

func (w *inPlace) ReadAt(p []byte, off int64) (int, error) { return w.part.ReadAt(p, off) }
func (w *inPlace) Size() int64                             { return w.part.Size() }
func (w *inPlace) WriteBlockSize() int64                   { return SectorSize }
func (w *inPlace) EraseBlockSize() int64                   { return SectorSize }

// EraseBlocks fills sectors with the erased pattern.
func (w *inPlace) EraseBlocks(start, count int64) error {
	blank := make([]byte, SectorSize)
	for i := range blank {
		blank[i] = erasedByte
	}
	for s := start; s < start+count; s++ {
		if _, err := w.WriteAt(blank, s*SectorSize); err != nil {
			return err
		}
	}
	return nil
}

func (w *inPlace) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > w.part.Size() {
		return 0, fmt.Errorf("volume write at %d+%d: %w", off, len(p), pkg.ErrOutOfRange)
	}
	eb := int64(len(w.block))
	written := 0
	for written < len(p) {
		pos := off + int64(written)
		blk := pos / eb
		base := blk * eb
		n := min(int64(len(p)-written), base+eb-pos)

		if _, err := w.part.ReadAt(w.block, base); err != nil {
			return written, fmt.Errorf("volume read block %d: %w", blk, err)
		}
		chunk := p[written : written+int(n)]
		dst := w.block[pos-base : pos-base+n]
		if needsErase(dst, chunk) {
			copy(dst, chunk)
			if err := w.part.EraseBlocks(blk, 1); err != nil {
				return written, fmt.Errorf("volume erase block %d: %w", blk, err)
			}
			if _, err := w.part.WriteAt(w.block, base); err != nil {
				return written, fmt.Errorf("volume program block %d: %w", blk, err)
			}
		} else if _, err := w.part.WriteAt(chunk, pos); err != nil {
			return written, fmt.Errorf("volume program at %d: %w", pos, err)
		}
		written += int(n)
	}
	return written, nil
}

// needsErase reports whether programming next over cur must set a bit.
func needsErase(cur, next []byte) bool {
	for i := range next {
		if cur[i]&next[i] != next[i] {
			return true
		}
	}
	return false
}
