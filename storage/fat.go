//go:build tinygo || cgo

package storage

import (
	"errors"
	"fmt"
	"os"

	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/fatfs"

	"github.com/ardnew/soundbox/pkg"
)

// fatVolume is a FAT filesystem served by tinyfs/fatfs.
type fatVolume struct {
	fat *fatfs.FATFS
}

// NewFAT returns a FAT filesystem over vol. It implements
// [FilesystemFactory].
func NewFAT(vol tinyfs.BlockDevice) (Filesystem, error) {
	fat := fatfs.New(vol).Configure(&fatfs.Config{SectorSize: fatfs.SectorSize})
	return &fatVolume{fat: fat}, nil
}

func (v *fatVolume) Mount() error   { return mapFatErr("mount", v.fat.Mount()) }
func (v *fatVolume) Unmount() error { return mapFatErr("unmount", v.fat.Unmount()) }
func (v *fatVolume) Format() error  { return mapFatErr("format", v.fat.Format()) }

func (v *fatVolume) ReadDir(path string) ([]os.FileInfo, error) {
	f, err := v.fat.OpenFile(path, os.O_RDONLY)
	if err != nil {
		return nil, mapFatErr("open dir", err)
	}
	defer func() { _ = f.Close() }()

	entries, err := f.Readdir(0)
	if err != nil {
		return nil, mapFatErr("readdir", err)
	}
	out := entries[:0]
	for _, e := range entries {
		if name := e.Name(); name == "." || name == ".." {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func mapFatErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var fr fatfs.FileResult
	if errors.As(err, &fr) {
		switch fr {
		case fatfs.FileResultNoFilesystem:
			return fmt.Errorf("fat %s: %w: %v", op, pkg.ErrMountFailed, err)
		case fatfs.FileResultInvalidParameter:
			return fmt.Errorf("fat %s: %w: %v", op, pkg.ErrInvalidParameter, err)
		case fatfs.FileResultNoFile, fatfs.FileResultNoPath:
			return fmt.Errorf("fat %s: %w", op, os.ErrNotExist)
		}
	}
	return fmt.Errorf("fat %s: %w", op, err)
}
