//go:build !tinygo && !cgo

package storage

import (
	"errors"
	"fmt"

	"tinygo.org/x/tinyfs"

	"github.com/ardnew/soundbox/pkg"
)

// ErrFATUnavailable indicates a build without the C FAT implementation.
var ErrFATUnavailable = errors.New("fat: requires cgo")

// NewFAT fails on builds without cgo.
func NewFAT(vol tinyfs.BlockDevice) (Filesystem, error) {
	return nil, fmt.Errorf("%w: %w", pkg.ErrMountFailed, ErrFATUnavailable)
}
