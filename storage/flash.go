package storage

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sync"

	"tinygo.org/x/tinyfs"

	"github.com/ardnew/soundbox/pkg"
)

// Flash geometry defaults.
const (
	DefaultFlashSize      = 2 * 1024 * 1024
	DefaultEraseBlockSize = 4096
)

// erasedByte is the value of every byte in an erased block.
const erasedByte = 0xFF

type backing interface {
	io.ReaderAt
	io.WriterAt
}

// memBacking is a RAM flash image.
type memBacking []byte

func (m memBacking) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m[off:]), nil
}

func (m memBacking) WriteAt(p []byte, off int64) (int, error) {
	return copy(m[off:], p), nil
}

// Flash emulates NOR flash: erased bytes read 0xFF, programming can only
// clear bits, and erasing works on whole erase blocks.
type Flash struct {
	mu         sync.Mutex
	b          backing
	file       *os.File
	size       int64
	eraseBlock int64
	scratch    []byte
	uid        [UniqueIDSize]byte
}

// UniqueIDSize is the length of the flash chip unique id.
const UniqueIDSize = 8

var _ tinyfs.BlockDevice = (*Flash)(nil)

// NewFlash returns an erased in-memory flash of size bytes.
func NewFlash(size, eraseBlock int64) (*Flash, error) {
	if err := checkGeometry(size, eraseBlock); err != nil {
		return nil, err
	}
	mem := make(memBacking, size)
	for i := range mem {
		mem[i] = erasedByte
	}
	fl := newFlash(mem, size, eraseBlock)
	_, _ = rand.Read(fl.uid[:])
	return fl, nil
}

// OpenFlashFile opens a file-backed flash image, creating an erased image of
// size bytes if the file is empty. An existing image keeps its own size.
func OpenFlashFile(path string, size, eraseBlock int64) (*Flash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flash image %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flash image %s: %w", path, err)
	}
	if st.Size() > 0 {
		size = st.Size()
	}
	if err := checkGeometry(size, eraseBlock); err != nil {
		_ = f.Close()
		return nil, err
	}

	fl := newFlash(f, size, eraseBlock)
	fl.file = f
	fl.uid = imageID(path)
	if st.Size() == 0 {
		if err := fl.EraseBlocks(0, size/eraseBlock); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return fl, nil
}

func newFlash(b backing, size, eraseBlock int64) *Flash {
	scratch := make([]byte, eraseBlock)
	for i := range scratch {
		scratch[i] = erasedByte
	}
	return &Flash{b: b, size: size, eraseBlock: eraseBlock, scratch: scratch}
}

// imageID derives a stable id from the absolute image path, so a device
// keeps its serial number across runs on the same image.
func imageID(path string) (id [UniqueIDSize]byte) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	binary.BigEndian.PutUint64(id[:], h.Sum64())
	return id
}

func checkGeometry(size, eraseBlock int64) error {
	if eraseBlock <= 0 || size <= 0 || size%eraseBlock != 0 {
		return fmt.Errorf("flash size %d, erase block %d: %w", size, eraseBlock, pkg.ErrInvalidParameter)
	}
	return nil
}

// UniqueID returns the chip unique id. An in-memory flash gets a random id;
// a file-backed image derives its id from the image path.
func (f *Flash) UniqueID() []byte {
	return f.uid[:]
}

// Close releases a file-backed image.
func (f *Flash) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

// ReadAt reads flash contents at off.
func (f *Flash) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off < 0 || off >= f.size {
		return 0, fmt.Errorf("flash read at %d: %w", off, pkg.ErrOutOfRange)
	}
	p = p[:min(int64(len(p)), f.size-off)]
	n, err := f.b.ReadAt(p, off)
	if errors.Is(err, io.EOF) && n == len(p) {
		err = nil
	}
	return n, err
}

// WriteAt programs p at off. Programming a bit from 0 to 1 fails with
// [pkg.ErrEraseRequired].
func (f *Flash) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off < 0 || off+int64(len(p)) > f.size {
		return 0, fmt.Errorf("flash write at %d+%d: %w", off, len(p), pkg.ErrOutOfRange)
	}

	cur := make([]byte, len(p))
	if _, err := f.b.ReadAt(cur, off); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("flash read before write at %d: %w", off, err)
	}
	for i := range p {
		if cur[i]&p[i] != p[i] {
			return 0, fmt.Errorf("flash write at %d: %w", off+int64(i), pkg.ErrEraseRequired)
		}
	}
	return f.b.WriteAt(p, off)
}

// Size returns the flash size in bytes.
func (f *Flash) Size() int64 { return f.size }

// WriteBlockSize returns the program granularity.
func (f *Flash) WriteBlockSize() int64 { return 1 }

// EraseBlockSize returns the erase granularity.
func (f *Flash) EraseBlockSize() int64 { return f.eraseBlock }

// EraseBlocks erases count erase blocks starting at block start.
func (f *Flash) EraseBlocks(start, count int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if start < 0 || count < 0 || (start+count)*f.eraseBlock > f.size {
		return fmt.Errorf("flash erase blocks %d+%d: %w", start, count, pkg.ErrOutOfRange)
	}
	for blk := start; blk < start+count; blk++ {
		if _, err := f.b.WriteAt(f.scratch, blk*f.eraseBlock); err != nil {
			return fmt.Errorf("flash erase block %d: %w", blk, err)
		}
	}
	return nil
}
