package storage

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"sync"

	"tinygo.org/x/tinyfs"

	"github.com/ardnew/soundbox/pkg"
)

// MountPath is where the data partition is mounted.
const MountPath = "/data"

// State is the mount state of the data partition.
type State int

// Mount states.
const (
	StateUnmounted State = iota
	StateMounted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateMounted:
		return "mounted"
	default:
		return "unknown"
	}
}

// Config describes where the data partition lives and how to mount it.
type Config struct {
	// Path is the mount path. Defaults to [MountPath].
	Path string

	// Partition selection; the first match wins.
	Type    PartitionType
	Subtype PartitionSubtype
	Label   string

	Table         *Table
	WearLeveler   WearLeveler
	NewFilesystem FilesystemFactory

	// FormatIfMountFailed formats the volume and retries once when the
	// filesystem cannot be mounted.
	FormatIfMountFailed bool
}

// DefaultConfig selects the first FAT data partition of table, with
// passthrough wear leveling and the FAT filesystem.
func DefaultConfig(table *Table) Config {
	return Config{
		Path:          MountPath,
		Type:          PartitionTypeData,
		Subtype:       SubtypeFAT,
		Table:         table,
		WearLeveler:   Passthrough{},
		NewFilesystem: NewFAT,
	}
}

// Stats counts block traffic from the USB host.
type Stats struct {
	BlocksRead    uint64
	BlocksWritten uint64
}

// Adapter owns the data partition handle and its mount state. Mount state
// transitions and block I/O are serialized by one mutex, so an unmount never
// interleaves with a host block transfer.
type Adapter struct {
	mutex sync.Mutex

	cfg   Config
	part  Partition
	vol   tinyfs.BlockDevice
	fs    Filesystem
	state State
	stats Stats

	onChange func(mounted bool)
}

// New creates an adapter. Nothing is touched until [Adapter.Mount].
func New(cfg Config) *Adapter {
	if cfg.Path == "" {
		cfg.Path = MountPath
	}
	return &Adapter{cfg: cfg}
}

// OnMountChanged registers fn to be called after every real mount state
// transition. It is called without the adapter lock held.
func (a *Adapter) OnMountChanged(fn func(mounted bool)) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.onChange = fn
}

// Path returns the mount path.
func (a *Adapter) Path() string { return a.cfg.Path }

// State returns the current mount state.
func (a *Adapter) State() State {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.state
}

// Mounted reports whether the filesystem is mounted.
func (a *Adapter) Mounted() bool { return a.State() == StateMounted }

// Partition returns the attached data partition, if any.
func (a *Adapter) Partition() Partition {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.part
}

// Mount locates the data partition, attaches wear leveling on first use and
// mounts the filesystem. Mounting a mounted adapter succeeds without effect.
func (a *Adapter) Mount() error {
	a.mutex.Lock()
	if a.state == StateMounted {
		a.mutex.Unlock()
		pkg.LogDebug(pkg.ComponentStorage, "already mounted", "path", a.cfg.Path)
		return nil
	}
	if err := a.attach(); err != nil {
		a.mutex.Unlock()
		return err
	}
	if err := a.mountFS(); err != nil {
		a.mutex.Unlock()
		return err
	}
	a.state = StateMounted
	fn := a.onChange
	a.mutex.Unlock()

	pkg.LogInfo(pkg.ComponentStorage, "storage mounted",
		"path", a.cfg.Path,
		"partition", a.part.Label,
		"size", a.part.Size)
	if fn != nil {
		fn(true)
	}
	return nil
}

// attach resolves the partition, volume and filesystem once.
// Caller must hold a.mutex.
func (a *Adapter) attach() error {
	if a.fs != nil {
		return nil
	}
	if a.cfg.Table == nil {
		return fmt.Errorf("no partition table: %w", pkg.ErrPartitionNotFound)
	}
	part, err := a.cfg.Table.Find(a.cfg.Type, a.cfg.Subtype, a.cfg.Label)
	if err != nil {
		return err
	}

	wl := a.cfg.WearLeveler
	if wl == nil {
		wl = Passthrough{}
	}
	vol, err := wl.Attach(a.cfg.Table.Open(part))
	if err != nil {
		if !errors.Is(err, pkg.ErrWearLevel) {
			err = fmt.Errorf("%w: %w", pkg.ErrWearLevel, err)
		}
		return fmt.Errorf("partition %s: %w", part.Label, err)
	}

	newFS := a.cfg.NewFilesystem
	if newFS == nil {
		newFS = NewFAT
	}
	fs, err := newFS(vol)
	if err != nil {
		return fmt.Errorf("partition %s: %w", part.Label, wrapMount(err))
	}

	a.part, a.vol, a.fs = part, vol, fs
	pkg.LogDebug(pkg.ComponentStorage, "wear leveling attached",
		"partition", part.String(),
		"sectors", vol.Size()/SectorSize)
	return nil
}

// mountFS mounts the filesystem, formatting first if configured to.
// Caller must hold a.mutex.
func (a *Adapter) mountFS() error {
	err := a.fs.Mount()
	if err == nil {
		return nil
	}
	if !a.cfg.FormatIfMountFailed {
		return fmt.Errorf("mount %s: %w", a.cfg.Path, wrapMount(err))
	}

	pkg.LogWarn(pkg.ComponentStorage, "mount failed, formatting",
		"path", a.cfg.Path,
		"error", err)
	if ferr := a.fs.Format(); ferr != nil {
		return fmt.Errorf("format %s: %w", a.cfg.Path, wrapMount(ferr))
	}
	if err := a.fs.Mount(); err != nil {
		return fmt.Errorf("mount %s after format: %w", a.cfg.Path, wrapMount(err))
	}
	return nil
}

func wrapMount(err error) error {
	if errors.Is(err, pkg.ErrMountFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", pkg.ErrMountFailed, err)
}

// Unmount detaches the filesystem. Unmounting an unmounted adapter returns
// nil and changes nothing.
func (a *Adapter) Unmount() error {
	a.mutex.Lock()
	if a.state != StateMounted {
		a.mutex.Unlock()
		pkg.LogDebug(pkg.ComponentStorage, "already unmounted", "path", a.cfg.Path)
		return nil
	}
	if err := a.fs.Unmount(); err != nil {
		a.mutex.Unlock()
		return fmt.Errorf("unmount %s: %w: %w", a.cfg.Path, pkg.ErrUnmountFailed, err)
	}
	a.state = StateUnmounted
	fn := a.onChange
	a.mutex.Unlock()

	pkg.LogInfo(pkg.ComponentStorage, "storage unmounted", "path", a.cfg.Path)
	if fn != nil {
		fn(false)
	}
	return nil
}

// List returns the entries of the mount path.
func (a *Adapter) List() ([]os.FileInfo, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.state != StateMounted {
		return nil, fmt.Errorf("list %s: %w", a.cfg.Path, pkg.ErrNotMounted)
	}
	return a.fs.ReadDir("/")
}

// Entries yields the names in the mount path. Each iteration reads the
// directory afresh; an unmounted adapter yields nothing.
func (a *Adapter) Entries() iter.Seq[string] {
	return func(yield func(string) bool) {
		infos, err := a.List()
		if err != nil {
			return
		}
		for _, fi := range infos {
			if !yield(fi.Name()) {
				return
			}
		}
	}
}

// Capacity returns the volume size in host blocks.
func (a *Adapter) Capacity() (blocks, blockSize uint32) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.vol == nil {
		return 0, SectorSize
	}
	return uint32(a.vol.Size() / SectorSize), SectorSize
}

// Ready reports whether the host may access the volume.
func (a *Adapter) Ready() bool { return a.Mounted() }

// Stats returns block traffic counters.
func (a *Adapter) Stats() Stats {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.stats
}

// ReadBlocks reads from block lba at byte offset into buf.
func (a *Adapter) ReadBlocks(lba, offset uint32, buf []byte) (int, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	off, err := a.blockOffset(lba, offset, len(buf))
	if err != nil {
		return 0, err
	}
	n, err := a.vol.ReadAt(buf, off)
	a.stats.BlocksRead += uint64((n + SectorSize - 1) / SectorSize)
	return n, err
}

// WriteBlocks writes data to block lba at byte offset.
func (a *Adapter) WriteBlocks(lba, offset uint32, data []byte) (int, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	off, err := a.blockOffset(lba, offset, len(data))
	if err != nil {
		return 0, err
	}
	n, err := a.vol.WriteAt(data, off)
	a.stats.BlocksWritten += uint64((n + SectorSize - 1) / SectorSize)
	return n, err
}

// blockOffset validates a host transfer. Caller must hold a.mutex.
func (a *Adapter) blockOffset(lba, offset uint32, n int) (int64, error) {
	if a.state != StateMounted {
		return 0, pkg.ErrNotMounted
	}
	off := int64(lba)*SectorSize + int64(offset)
	if off+int64(n) > a.vol.Size() {
		return 0, fmt.Errorf("lba %d+%d: %w", lba, n, pkg.ErrOutOfRange)
	}
	return off, nil
}
