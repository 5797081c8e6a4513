package storage

import (
	"os"

	"tinygo.org/x/tinyfs"
)

// Filesystem is the filesystem mounted on the wear-leveled volume.
type Filesystem interface {
	Mount() error
	Unmount() error
	Format() error

	// ReadDir lists the directory at path, excluding "." and "..".
	ReadDir(path string) ([]os.FileInfo, error)
}

// FilesystemFactory builds a filesystem over a volume.
type FilesystemFactory func(vol tinyfs.BlockDevice) (Filesystem, error)
